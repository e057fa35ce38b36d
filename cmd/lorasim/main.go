// lorasim drives the MAC layer end-to-end against an in-process network
// server: OTAA join followed by a series of confirmed uplinks whose
// payloads the server echoes back.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lorastack/loramac/band"
	"github.com/lorastack/loramac/mac"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "lorasim",
		Short: "Simulated LoRaWAN end-device running the loramac stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "device profile (YAML)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg deviceConfig) error {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	phy, err := band.GetBand(cfg.Region)
	if err != nil {
		return err
	}

	radio := newSimRadio(log, cfg.AppKey)
	queue := mac.NewDispatcher()
	defer queue.Stop()

	joined := make(chan mac.EventStatus, 1)
	echoes := make(chan []byte, 16)
	confirms := make(chan mac.McpsConfirm, 16)

	m, err := mac.New(mac.Config{
		Primitives: mac.Primitives{
			MlmeConfirm: func(c *mac.MlmeConfirm) {
				if c.Type == mac.MlmeJoin {
					joined <- c.Status
				}
			},
			McpsConfirm: func(c *mac.McpsConfirm) {
				confirms <- *c
			},
			McpsIndication: func(i *mac.McpsIndication) {
				if i.RxData {
					echoes <- i.Data
				}
			},
		},
		Callbacks: mac.Callbacks{GetBatteryLevel: func() uint8 { return 254 }},
		Band:      phy,
		Radio:     radio,
		Clock:     mac.NewSystemClock(),
		Queue:     queue,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	radio.setEvents(m.RadioEvents())

	if cfg.Class == "C" {
		if err := m.SetDeviceClass(mac.ClassC); err != nil {
			return err
		}
	}
	m.SetADR(cfg.ADR)

	log.WithFields(logrus.Fields{
		"dev_eui": cfg.DevEUI,
		"region":  cfg.Region,
	}).Info("joining")

	err = m.MlmeRequest(&mac.MlmeRequest{
		Type: mac.MlmeJoin,
		Join: mac.JoinParams{
			DevEUI:   cfg.DevEUI,
			AppEUI:   cfg.AppEUI,
			AppKey:   cfg.AppKey,
			NbTrials: 3,
		},
	})
	if err != nil {
		return err
	}

	select {
	case status := <-joined:
		if status != mac.StatusOK {
			return fmt.Errorf("join failed: %s", status)
		}
	case <-time.After(30 * time.Second):
		return fmt.Errorf("join timed out")
	}
	log.WithField("dev_addr", m.DevAddr()).Info("joined")

	// disable the duty-cycle enforcement so the demo does not spend
	// minutes waiting between uplinks
	m.TestSetDutyCycleOn(false)

	for i := 0; i < cfg.Count; i++ {
		msg := fmt.Sprintf("%s #%d", cfg.Message, i+1)
		err := m.McpsRequest(&mac.McpsRequest{
			Type:     mac.McpsConfirmed,
			FPort:    cfg.Port,
			Data:     []byte(msg),
			Datarate: 5,
			NbTrials: 3,
		})
		if err != nil {
			return err
		}

		select {
		case c := <-confirms:
			log.WithFields(logrus.Fields{
				"ack":     c.AckReceived,
				"retries": c.NbRetries,
				"fcnt_up": c.UpLinkCounter,
			}).Info("uplink confirmed")
		case <-time.After(30 * time.Second):
			return fmt.Errorf("uplink %d timed out", i+1)
		}

		select {
		case echo := <-echoes:
			log.WithField("payload", string(echo)).Info("downlink received")
		default:
		}
	}

	return nil
}
