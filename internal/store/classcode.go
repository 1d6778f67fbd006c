package store

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"
)

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 6
	maxCodeAttempts = 100
)

func generateClassCode() string {
	b := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b)
}

// uniqueClassCode draws codes until exists reports a free one. After
// maxCodeAttempts collisions it appends the last four digits of the clock.
func uniqueClassCode(exists func(string) (bool, error)) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := generateClassCode()
		taken, err := exists(code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	ms := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return generateClassCode() + ms[len(ms)-4:], nil
}
