package middlewares

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Setouprincely/automated-results-system-sub005/utils"
	"github.com/didip/tollbooth/v6"
	"github.com/didip/tollbooth/v6/limiter"
)

// RateLimit limits each client IP to perSecond requests with an equal burst.
// Limited requests get 429 with the usual JSON envelope.
func RateLimit(perSecond float64) func(http.Handler) http.Handler {
	lmt := tollbooth.NewLimiter(perSecond, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	body, _ := json.Marshal(utils.Envelope{Message: utils.RateLimitedError})
	lmt.SetMessage(string(body))
	lmt.SetMessageContentType("application/json")
	return func(next http.Handler) http.Handler {
		return tollbooth.LimitHandler(lmt, next)
	}
}
