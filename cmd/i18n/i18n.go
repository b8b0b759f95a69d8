// Package i18n translates the user facing messages of the CLI.
package i18n

import (
	"os"
	"sync"

	"github.com/leonelquinteros/gotext"
)

var (
	mu sync.RWMutex
	po = newDefault()
)

func newDefault() *gotext.Po {
	return gotext.NewPo()
}

// Init loads the catalog at poFile. Without a catalog messages are printed
// untranslated.
func Init(poFile string) {
	if poFile == "" {
		return
	}
	if _, err := os.Stat(poFile); err != nil {
		return
	}
	catalog := gotext.NewPo()
	catalog.ParseFile(poFile)
	mu.Lock()
	po = catalog
	mu.Unlock()
}

// Tr returns msg translated in the current locale, formatted with args.
func Tr(msg string, args ...any) string {
	mu.RLock()
	defer mu.RUnlock()
	return po.Get(msg, args...)
}
