package storage

import "mediafactory/internal/ports"

// Provider is the object store contract used by publishing and the CLI.
type Provider = ports.StorageProvider
