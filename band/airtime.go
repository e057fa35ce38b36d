package band

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// codingRate defines the coding-rate type.
type codingRate int

// Available coding-rates. LoRaWAN always uses 4/5.
const (
	codingRate45 codingRate = 1
	codingRate46 codingRate = 2
	codingRate47 codingRate = 3
	codingRate48 codingRate = 4
)

// calculateLoRaAirtime calculates the airtime for a LoRa modulated frame.
// This implements the formula as defined by:
// https://www.semtech.com/uploads/documents/LoraDesignGuide_STD.pdf.
func calculateLoRaAirtime(payloadSize, sf, bandwidth, preambleNumber int, cr codingRate, headerEnabled, lowDataRateOptimization bool) (time.Duration, error) {
	symbolDuration := calculateLoRaSymbolDuration(sf, bandwidth)
	preambleDuration := calculateLoRaPreambleDuration(symbolDuration, preambleNumber)

	payloadSymbolNumber, err := calculateLoRaPayloadSymbolNumber(payloadSize, sf, cr, headerEnabled, lowDataRateOptimization)
	if err != nil {
		return 0, err
	}

	return preambleDuration + (time.Duration(payloadSymbolNumber) * symbolDuration), nil
}

// calculateLoRaSymbolDuration calculates the LoRa symbol duration.
func calculateLoRaSymbolDuration(sf int, bandwidth int) time.Duration {
	return time.Duration((1 << uint(sf)) * 1000000 / bandwidth)
}

// calculateLoRaPreambleDuration calculates the LoRa preamble duration.
func calculateLoRaPreambleDuration(symbolDuration time.Duration, preambleNumber int) time.Duration {
	return time.Duration((100*preambleNumber)+425) * symbolDuration / 100
}

// calculateLoRaPayloadSymbolNumber returns the number of symbols that make
// up the packet payload and header.
func calculateLoRaPayloadSymbolNumber(payloadSize, sf int, cr codingRate, headerEnabled, lowDataRateOptimization bool) (int, error) {
	var pl, spreadingFactor, h, de, crf float64

	if cr < 1 || cr > 4 {
		return 0, errors.New("band: coding-rate must be between 1 - 4")
	}

	if lowDataRateOptimization {
		de = 1
	}

	if !headerEnabled {
		h = 1
	}

	pl = float64(payloadSize)
	spreadingFactor = float64(sf)
	crf = float64(cr)

	a := 8*pl - 4*spreadingFactor + 28 + 16 - 20*h
	b := 4 * (spreadingFactor - 2*de)
	c := crf + 4

	return int(8 + math.Max(math.Ceil(a/b)*c, 0)), nil
}
