package provisioning

// ProvisionResult is returned from a successful provisioning call. The
// bootstrap secret is the only time that plaintext is ever revealed.
type ProvisionResult struct {
	InstallID       string
	Serial          string
	BootstrapSecret string
}

// PairResult is returned once bootstrap redemption succeeds. The sync
// secret plaintext is revealed exactly once; afterwards only its
// ciphertext is stored.
type PairResult struct {
	InstallID           string
	Serial              string
	SyncSecret          string
	SyncIntervalMinutes int
}
