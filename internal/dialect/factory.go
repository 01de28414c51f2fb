package dialect

// GetDialect returns the Syntax implementation for a configured dialect or driver name.
func GetDialect(name string) Syntax {
	switch name {
	case "postgres", "postgresql", "pgsql":
		return &PostgresDialect{}
	case "sqlserver", "mssql":
		return &MSSQLDialect{}
	case "oracle", "ora":
		return &OracleDialect{}
	default: // mysql
		return &MysqlDialect{}
	}
}

// Known reports whether name selects a supported dialect.
func Known(name string) bool {
	switch name {
	case "postgres", "postgresql", "pgsql", "sqlserver", "mssql", "oracle", "ora", "mysql":
		return true
	}
	return false
}

// Ensure interface implementation
var _ Syntax = (*MysqlDialect)(nil)
var _ Syntax = (*PostgresDialect)(nil)
var _ Syntax = (*MSSQLDialect)(nil)
var _ Syntax = (*OracleDialect)(nil)
