// Package lockout cuenta intentos fallidos por identificador y bloquea al
// superar un umbral. Se usa para el login por password y, con contadores
// propios, para cada método MFA.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/metrics"
)

// ErrLocked indica que el identificador alcanzó el umbral.
var ErrLocked = errors.New("lockout: threshold reached")

// Tracker es un contador de fallos con ventana. Threshold 0 lo deshabilita.
type Tracker struct {
	name      string
	counter   cache.Counter
	threshold int
}

// New crea un tracker con keys "<name>:<id>". La ventana arranca en el
// primer fallo y no se extiende con los siguientes.
func New(c cache.Client, name string, threshold int, window time.Duration) *Tracker {
	return &Tracker{name: name, counter: cache.NewCounter(c, name, window), threshold: threshold}
}

// Enabled indica si el umbral está activo.
func (t *Tracker) Enabled() bool { return t.threshold > 0 }

func normalize(id string) string { return strings.ToLower(strings.TrimSpace(id)) }

// Check retorna ErrLocked si el contador ya alcanzó el umbral. Debe
// llamarse antes de verificar la credencial.
func (t *Tracker) Check(ctx context.Context, id string) error {
	if !t.Enabled() {
		return nil
	}
	n, err := t.counter.Value(ctx, normalize(id))
	if err != nil {
		return fmt.Errorf("lockout: read counter: %w", err)
	}
	if n >= int64(t.threshold) {
		return ErrLocked
	}
	return nil
}

// Fail registra un fallo. locked indica si con este fallo se alcanzó el umbral.
func (t *Tracker) Fail(ctx context.Context, id string) (locked bool, err error) {
	if !t.Enabled() {
		return false, nil
	}
	n, err := t.counter.Incr(ctx, normalize(id))
	if err != nil {
		return false, fmt.Errorf("lockout: incr counter: %w", err)
	}
	if n == int64(t.threshold) {
		metrics.Lockout(t.name)
	}
	return n >= int64(t.threshold), nil
}

// Clear resetea el contador (login exitoso o reset de password verificado).
func (t *Tracker) Clear(ctx context.Context, id string) error {
	if !t.Enabled() {
		return nil
	}
	if err := t.counter.Reset(ctx, normalize(id)); err != nil {
		return fmt.Errorf("lockout: reset counter: %w", err)
	}
	return nil
}

// RetryAfter retorna el tiempo restante de la ventana actual.
func (t *Tracker) RetryAfter(ctx context.Context, id string) (time.Duration, error) {
	return t.counter.Remaining(ctx, normalize(id))
}
