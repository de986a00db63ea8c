package domain

const (
	// Blockchain constants
	ETHEREUM_ZERO_ADDRESS = "0x0000000000000000000000000000000000000000"

	// Standard Multicall3 deployment, identical across all major EVM chains
	DEFAULT_MULTICALL3_ADDRESS = "0xcA11bde05977b3631167028862bE2a173976CA11"

	// Default number of decimals for on-chain reward amounts
	DEFAULT_REWARD_DECIMALS = 18
)
