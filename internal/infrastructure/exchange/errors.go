package exchange

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vitos/tabdeal_margin/internal/domain"
)

// Known markers inside 400 response bodies. The server reports the failure
// reason only in the body text, so classification is substring-based.
const (
	marketNotFoundMarker         = "Market not found"
	marginNotActiveMarker        = "Margin trading is not active"
	transferOverBalanceMarker    = "Transfer amount is over account balance"
	transferFromMarginMarker     = "Transfer from margin asset to wallet is not possible"
	marginPositionNotFoundMarker = "Margin position not found"
	orderInvalidMarker           = "Order is invalid"
	parametersInvalidMarker      = "Requested parameters are invalid"
)

// mapResponseError turns a non-200 response into the matching contract error
// from the domain package. Unrecognized failures keep the status code and
// body so the caller can log something actionable.
func mapResponseError(statusCode int, body string) error {
	if statusCode == http.StatusUnauthorized {
		return domain.ErrAuthorization
	}
	if statusCode == http.StatusBadRequest {
		switch {
		case strings.Contains(body, marketNotFoundMarker):
			return domain.ErrMarketNotFound
		case strings.Contains(body, marginNotActiveMarker):
			return domain.ErrMarginNotActive
		case strings.Contains(body, transferOverBalanceMarker):
			return domain.ErrTransferOverBalance
		case strings.Contains(body, transferFromMarginMarker):
			return domain.ErrTransferFromMarginNotPossible
		case strings.Contains(body, marginPositionNotFoundMarker):
			return domain.ErrMarginPositionNotFound
		case strings.Contains(body, orderInvalidMarker):
			return domain.ErrOrderInvalid
		case strings.Contains(body, parametersInvalidMarker):
			return domain.ErrRequestedParametersInvalid
		}
	}
	return fmt.Errorf("server responded with status %d: %s", statusCode, body)
}
