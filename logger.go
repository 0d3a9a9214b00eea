package bbcodify

import (
	"log"
	"os"
)

// Logger is the package logger. Collaborator failures and iteration
// ceiling hits are reported here; they never abort a conversion.
var Logger = log.New(os.Stderr, "[bbcodify] ", log.LstdFlags)

// SetLogger replaces the package logger.
func SetLogger(logger *log.Logger) {
	Logger = logger
}
