package external

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/your-org/order-fulfillment/internal/config"
	"github.com/your-org/order-fulfillment/internal/domain/checkout"
)

// AddressClient validates delivery addresses against the address book service
type AddressClient struct {
	api *apiClient
}

// NewAddressClient creates an address book client
func NewAddressClient(cfg config.AddressConfig, log *logrus.Logger) *AddressClient {
	return &AddressClient{
		api: newAPIClient(cfg.BaseURL, "", cfg.Timeout, log.WithField("component", "address_client")),
	}
}

// ValidateAddress checks that the address belongs to the user and is deliverable
func (c *AddressClient) ValidateAddress(ctx context.Context, userID, addressID uint) (*checkout.AddressResult, error) {
	var res checkout.AddressResult
	endpoint := fmt.Sprintf("/users/%d/addresses/%d/validate", userID, addressID)
	if err := c.api.call(ctx, http.MethodGet, endpoint, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
