package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
)

const (
	// CodeMin and CodeMax bound the five-digit verification codes.
	CodeMin = 10000
	CodeMax = 99999
)

// NewVerificationCode returns a uniformly random code in [CodeMin, CodeMax].
func NewVerificationCode() (string, error) {
	return NewNumericCode(CodeMin, CodeMax)
}

// NewNumericCode returns a uniformly random decimal in [min, max].
func NewNumericCode(min, max int64) (string, error) {
	if min < 0 || max < min {
		return "", errors.New("invalid code range")
	}

	n, err := rand.Int(rand.Reader, big.NewInt(max-min+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(min+n.Int64(), 10), nil
}

// IsVerificationCode reports whether code has the shape produced by
// [NewVerificationCode].
func IsVerificationCode(code string) bool {
	if len(code) != 5 {
		return false
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return false
	}
	return n >= CodeMin && n <= CodeMax
}
