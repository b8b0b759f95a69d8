package servicelocator

import (
	"sync"

	"go.bug.st/f"

	"github.com/slurmdesk/slurmdesk/internal/config"
	"github.com/slurmdesk/slurmdesk/internal/session"
	"github.com/slurmdesk/slurmdesk/internal/state"
)

var globalConfig *config.Configuration

// Init must be called once, before any getter.
func Init(cfg config.Configuration) {
	globalConfig = &cfg
}

var (
	sess *session.Session

	GetConfiguration = func() *config.Configuration {
		f.Assert(globalConfig != nil, "servicelocator not initialized")
		return globalConfig
	}

	GetStateStore = sync.OnceValue(func() *state.Store {
		return state.New(GetConfiguration().StateFile().String())
	})

	GetSession = sync.OnceValue(func() *session.Session {
		sess = session.New(GetConfiguration(), GetStateStore(), session.SSHDialer)
		return sess
	})

	CloseSession = func() error {
		if sess != nil {
			return sess.Close()
		}
		return nil
	}
)
