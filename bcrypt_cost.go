//go:build !race

package sentinel

// defaultHashCost is used when no BcryptHasher cost is configured.
const defaultHashCost = 12
