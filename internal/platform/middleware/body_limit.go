package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// DefaultBodyLimit is used when the configured limit cannot be parsed.
const DefaultBodyLimit int64 = 1 << 20

var sizeUnits = []struct {
	suffix string
	mult   int64
}{
	{"GB", 1 << 30}, {"G", 1 << 30},
	{"MB", 1 << 20}, {"M", 1 << 20},
	{"KB", 1 << 10}, {"K", 1 << 10},
	{"B", 1},
}

// ParseLimit converts a size such as "50M", "512kb" or "1024" into bytes.
func ParseLimit(s string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return 0, fmt.Errorf("empty size")
	}

	mult := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(v, u.suffix) {
			mult = u.mult
			v = strings.TrimSpace(strings.TrimSuffix(v, u.suffix))
			break
		}
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}

// BodyLimit rejects request bodies larger than limit with 413. Declared
// lengths are checked up front; chunked bodies fail when the handler reads
// past the limit.
func BodyLimit(limit string) echo.MiddlewareFunc {
	max, err := ParseLimit(limit)
	if err != nil {
		max = DefaultBodyLimit
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > max {
				return tooLarge(c, max)
			}

			req.Body = http.MaxBytesReader(c.Response(), req.Body, max)
			err := next(c)

			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
					errorBody("payload_too_large", fmt.Sprintf("request body exceeds %d bytes", mbe.Limit))).SetInternal(err)
			}
			return err
		}
	}
}

func tooLarge(c echo.Context, max int64) error {
	return c.JSON(http.StatusRequestEntityTooLarge,
		errorBody("payload_too_large", fmt.Sprintf("request body exceeds %d bytes", max)))
}
