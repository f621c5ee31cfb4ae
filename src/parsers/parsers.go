// src/parsers/parsers.go
package parsers

import (
	"fmt"
	"io"

	"github.com/BanziSeo/habiOS-sub002/src/models"
	"github.com/BanziSeo/habiOS-sub002/src/parsers/brokercsv"
)

// Parser turns one broker export into an import batch for the target account.
type Parser interface {
	Parse(file io.Reader, accountID string) (models.ImportBatch, error)
}

// GetParser returns the parser registered for a source name.
func GetParser(source string) (Parser, error) {
	switch source {
	case "brokercsv", "csv":
		return brokercsv.NewParser(), nil
	default:
		return nil, fmt.Errorf("unsupported import source: %s", source)
	}
}
