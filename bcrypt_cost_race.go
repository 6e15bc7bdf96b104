//go:build race

package sentinel

import "golang.org/x/crypto/bcrypt"

// Race builds hash at the minimum cost, the detector already slows tests down.
const defaultHashCost = bcrypt.MinCost
