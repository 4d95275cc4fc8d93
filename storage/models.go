package storage

// walletFile is the on-disk shape of the profile store: profile name to
// base64-encoded private key. Profile names double as CLI roles ("admin",
// "operator", anything else is a depositor).
type walletFile map[string]string
