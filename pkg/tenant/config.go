package tenant

import "time"

type Config struct {
	SchemaPrefix string        `env:"TENANT_SCHEMA_PREFIX" envDefault:"center_"` // SchemaPrefix is prepended to the center ID to form the schema name.
	PublicSchema string        `env:"TENANT_PUBLIC_SCHEMA" envDefault:"public"`  // PublicSchema is the shared catalog schema.
	CacheTTL     time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`          // CacheTTL bounds how long an existence flag may be served without an authoritative lookup.
}
