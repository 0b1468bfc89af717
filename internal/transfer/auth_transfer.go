package transfer

import "github.com/golang-jwt/jwt/v5"

// OperatorClaims identify whoever drives the dispatcher's HTTP surface.
type OperatorClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}
