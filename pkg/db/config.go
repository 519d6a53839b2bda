package db

// Config selects the database driver and shapes the connection pool.
// Type is one of postgres, mysql, or sqlite; for sqlite, Name is the
// DSN and the host/port/user fields are ignored.
type Config struct {
	Type     string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxIdleConn int
	MaxOpenConn int
	// Lifetime and idle time are in seconds; zero leaves the
	// database/sql default in place.
	ConnMaxLifetime int
	ConnMaxIdleTime int
}
