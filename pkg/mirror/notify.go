package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/astromechza/rectangle-sync/pkg/rect"
)

// Update is a mirror write announced by another replica. Rectangles is nil
// when the notifier only knows that the shared file changed, in which case the
// receiver reloads its own mirror.
type Update struct {
	Rectangles []rect.Rectangle
}

// Notifier tells replicas sharing a mirror that it has been rewritten.
type Notifier interface {
	// Notify announces a write of rects made by this process.
	Notify(ctx context.Context, rects []rect.Rectangle) error
	// Watch calls fn for writes made by others until ctx is done.
	Watch(ctx context.Context, fn func(Update)) error
}

// FileNotifier watches the mirror file itself. Writing the file is the
// notification, so Notify does nothing. fn also fires for this process's own
// writes; callers compare content before acting.
type FileNotifier struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

func NewFileNotifier(path string, logger *slog.Logger) *FileNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileNotifier{path: filepath.Clean(path), debounce: 50 * time.Millisecond, logger: logger}
}

func (f *FileNotifier) Notify(context.Context, []rect.Rectangle) error {
	return nil
}

func (f *FileNotifier) Watch(ctx context.Context, fn func(Update)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	// sqlite replaces and truncates its side files, so watch the directory.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(f.path), err)
	}

	timer := time.NewTimer(f.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Clean(ev.Name), f.path) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				timer.Reset(f.debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("mirror watch error", "err", err)
		case <-timer.C:
			fn(Update{})
		case <-ctx.Done():
			return nil
		}
	}
}

// RedisNotifier publishes the full collection on a channel derived from the
// mirror key, so replicas that do not share a filesystem can adopt each
// other's writes.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

type announcement struct {
	Origin     string           `json:"origin"`
	Rectangles []rect.Rectangle `json:"rectangles"`
}

func NewRedisNotifier(client *redis.Client, key string) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		channel: "rectsync:mirror:" + key,
		origin:  uuid.NewString(),
		logger:  slog.Default(),
	}
}

// DialRedis parses url and checks the server is reachable.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (r *RedisNotifier) Notify(ctx context.Context, rects []rect.Rectangle) error {
	if rects == nil {
		rects = []rect.Rectangle{}
	}
	payload, err := json.Marshal(announcement{Origin: r.origin, Rectangles: rects})
	if err != nil {
		return fmt.Errorf("failed to encode mirror write: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, string(payload)).Err(); err != nil {
		return fmt.Errorf("failed to publish mirror write: %w", err)
	}
	return nil
}

func (r *RedisNotifier) Watch(ctx context.Context, fn func(Update)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	messages := sub.Channel()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var a announcement
			if err := json.Unmarshal([]byte(msg.Payload), &a); err != nil {
				r.logger.Warn("dropping invalid mirror announcement", "channel", r.channel, "err", err)
				continue
			}
			if a.Origin == r.origin {
				continue
			}
			if a.Rectangles == nil {
				a.Rectangles = []rect.Rectangle{}
			}
			fn(Update{Rectangles: a.Rectangles})
		case <-ctx.Done():
			return nil
		}
	}
}
