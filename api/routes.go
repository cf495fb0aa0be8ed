package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// InfoEndpoint exposes the ledger address and its encryption public key
	InfoEndpoint = "/info"
	// RoundsEndpoint is the endpoint for creating a new aggregation round
	RoundsEndpoint = "/rounds"
	// ActiveRoundEndpoint is the endpoint to get the currently open round
	ActiveRoundEndpoint = "/rounds/active"
	// RoundEndpoint is the endpoint to get the round info
	RoundURLParam = "roundId"
	RoundEndpoint = "/rounds/{" + RoundURLParam + "}"
	// FinalizeEndpoint is the endpoint for the round owner to close the round
	// and sweep the pooled funds
	FinalizeEndpoint = "/rounds/{" + RoundURLParam + "}/finalize"
	// RoundContributionEndpoint is the endpoint to get the cumulative
	// contribution of a principal in a round
	AddressURLParam           = "address"
	RoundContributionEndpoint = "/rounds/{" + RoundURLParam + "}/contributions/{" + AddressURLParam + "}"
	// ContributionsEndpoint is the endpoint for submitting a contribution to
	// the active round
	ContributionsEndpoint = "/contributions"
	// OperatorsEndpoint is the endpoint for authorizing an operator on the
	// caller's balance
	OperatorsEndpoint = "/operators"
	// MintEndpoint is the endpoint for crediting a balance with a fresh
	// encryption of a known amount
	MintEndpoint = "/mint"
	// BalanceEndpoint is the endpoint to get the encrypted balance of a
	// principal
	BalanceEndpoint = "/balances/{" + AddressURLParam + "}"
	// DecryptEndpoint is the endpoint for requesting the plaintext of a
	// granted ciphertext handle
	DecryptEndpoint = "/decrypt"
)
