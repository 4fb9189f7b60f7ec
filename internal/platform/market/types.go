package market

import (
	"encoding/json"
	"fmt"
)

// apiMoment is the metadata service's representation of a single moment.
type apiMoment struct {
	ID      string `json:"id"`
	Edition struct {
		ID     string `json:"id"`
		Tier   string `json:"tier"`
		Player struct {
			Name         string `json:"name"`
			TeamName     string `json:"teamName"`
			JerseyNumber int64  `json:"jerseyNumber,string"`
		} `json:"player"`
		MaxMint int64 `json:"maxMint"`
	} `json:"edition"`
	SerialNumber int64 `json:"serialNumber"`
}

// apiEditionStats carries the marketplace's aggregate price data for an
// edition. Prices are decimal strings; empty means no data.
type apiEditionStats struct {
	EditionID        string `json:"editionId"`
	FloorPrice       string `json:"floorPrice"`
	AverageSalePrice string `json:"averageSalePrice"`
	ListingCount     int    `json:"listingCount"`
}

// apiHolding is one entry of an account's holdings listing.
type apiHolding struct {
	ItemID       string `json:"itemId"`
	ResourceType string `json:"resourceType"`
}

// apiError is the marketplace API's error envelope.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// checkHTTPStatus converts a non-2xx marketplace response into an error.
func checkHTTPStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("marketplace status %d: %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("marketplace status %d: %s", status, apiErr.Error)
		}
	}
	return fmt.Errorf("marketplace status %d", status)
}
