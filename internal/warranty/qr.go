package warranty

import (
	"context"
	"fmt"

	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// CardQR renders the PNG printed on a warranty card. The payload is the
// public check URL so a phone camera lands on the lookup page.
func (s *Service) CardQR(ctx context.Context, code, checkBaseURL string) ([]byte, error) {
	c, err := s.Check(ctx, code)
	if err != nil {
		return nil, err
	}
	payload := c.Unit.Code
	if checkBaseURL != "" {
		payload = fmt.Sprintf("%s?code=%s", checkBaseURL, c.Unit.Code)
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr for %s: %w", c.Unit.Code, err)
	}
	return png, nil
}
