package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"    // time expresses the booking tunables as durations
)

// Config holds all runtime configuration values.  Each field
// corresponds to an environment variable.  Required infrastructure
// settings are enforced at startup; booking tunables fall back to the
// defaults the platform has always shipped with (10 minute holds and
// pending grace, 2 hour cancellation cutoff).
type Config struct {
    Env       string // application environment (e.g. "dev", "prod")
    Port      string // HTTP port to listen on
    DBUser    string // database username
    DBPass    string // database password (optional)
    DBHost    string // database host address
    DBPort    string // database port number
    DBName    string // database name
    JWTSecret string // secret used to verify access tokens

    HoldTTL       time.Duration // lifetime of a seat hold
    PendingGrace  time.Duration // how long unpaid pending bookings survive
    CancelCutoff  time.Duration // no cancellations this close to departure
    SweepInterval time.Duration // period of the background expiry sweep
}

// Load reads configuration values from environment variables and
// returns a Config.  Required variables are enforced by must() and
// missing values cause the program to exit with a fatal log message.
func Load() Config {
    return Config{
        Env:       must("APP_ENV"),      // environment (dev/test/prod)
        Port:      must("APP_PORT"),     // port to bind the HTTP server
        DBUser:    must("DB_USER"),      // database user
        DBPass:    os.Getenv("DB_PASS"), // database password (empty allowed)
        DBHost:    must("DB_HOST"),      // database host
        DBPort:    must("DB_PORT"),      // database port
        DBName:    must("DB_NAME"),      // database name
        JWTSecret: must("JWT_SECRET"),   // secret used for verifying JWTs

        HoldTTL:       seconds("HOLD_TTL_SECONDS", 600),
        PendingGrace:  seconds("PENDING_GRACE_SECONDS", 600),
        CancelCutoff:  seconds("CANCEL_CUTOFF_SECONDS", 7200),
        SweepInterval: seconds("SWEEP_INTERVAL_SECONDS", 60),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// seconds reads an integer environment variable and returns it as a
// duration, falling back to def when unset or invalid.
func seconds(key string, def int) time.Duration {
    n := def
    if s := os.Getenv(key); s != "" {
        if v, err := strconv.Atoi(s); err == nil && v > 0 {
            n = v
        } else {
            log.Fatalf("invalid int for %s: %q", key, s)
        }
    }
    return time.Duration(n) * time.Second
}
