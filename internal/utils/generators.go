package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func GenerateID() string {
	return uuid.NewString()
}

func randomCode(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		b[i] = codeAlphabet[idx.Int64()]
	}
	return string(b)
}

// GenerateOrderCode returns a code like DH-250131-7KQ2MX.
func GenerateOrderCode(now time.Time) string {
	return fmt.Sprintf("DH-%s-%s", now.UTC().Format("060102"), randomCode(6))
}

// GenerateWarrantyCode returns a code like BH-250131-7KQ2MX.
func GenerateWarrantyCode(now time.Time) string {
	return fmt.Sprintf("BH-%s-%s", now.UTC().Format("060102"), randomCode(6))
}
