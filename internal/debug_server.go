package internal

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"quiz-lab/contract"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

//go:embed inspect.html
var templatesFS embed.FS

const defaultPrefix = "rooms/"

type InspectRow struct {
	Key          string
	Collection   string
	ID           string
	Name         string
	Status       string
	Host         string
	Players      string
	LastActivity string
	Detail       string
}

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]int
}

// DebugServer is a read-only HTML view over the raw store, for watching
// rooms change while playing.
type DebugServer struct {
	db   *badger.DB
	log  *slog.Logger
	addr string
	tmpl *template.Template
}

var _ contract.Worker = (*DebugServer)(nil)

func NewDebugServer(db *badger.DB, log *slog.Logger, port int) *DebugServer {
	return &DebugServer{
		db:   db,
		log:  log,
		addr: fmt.Sprintf("0.0.0.0:%d", port),
		tmpl: template.Must(template.ParseFS(templatesFS, "inspect.html")),
	}
}

func (s *DebugServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/inspect", s.inspect)
	return mux
}

// Run serves until ctx is done.
func (s *DebugServer) Run(ctx context.Context) error {
	server := &http.Server{Addr: s.addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Debug server listening", "url", fmt.Sprintf("http://%s/inspect?prefix=%s", s.addr, defaultPrefix))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *DebugServer) inspect(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = defaultPrefix
	}
	data := PageData{Prefix: prefix, Stats: make(map[string]int)}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			collection, _, _ := strings.Cut(key, "/")
			data.Stats[collection]++
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			if err := item.Value(func(val []byte) error {
				data.Items = append(data.Items, DocumentMapper(key, val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warn("Inspect failed", "prefix", prefix, "error", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err = s.tmpl.Execute(w, data); err != nil {
		s.log.Warn("Inspect rendering failed", "error", err)
	}
}

// DocumentMapper turns a stored document into a table row. Room fields are
// filled when present; anything else shows its size only.
func DocumentMapper(key string, val []byte) InspectRow {
	collection, id, _ := strings.Cut(key, "/")
	row := InspectRow{
		Key:          key,
		Collection:   collection,
		ID:           id,
		Name:         "-",
		Status:       "-",
		Host:         "-",
		Players:      "-",
		LastActivity: "--:--:--",
		Detail:       "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	doc := &structpb.Struct{}
	if err := proto.Unmarshal(val, doc); err != nil {
		row.Detail = "undecodable: " + err.Error()
		return row
	}
	fields := doc.AsMap()
	if v, ok := fields["name"].(string); ok {
		row.Name = v
	}
	if v, ok := fields["status"].(string); ok {
		row.Status = v
	}
	if v, ok := fields["host"].(string); ok {
		row.Host = v
	}
	if v, ok := fields["lastActivity"].(float64); ok {
		row.LastActivity = time.UnixMilli(int64(v)).Format("15:04:05")
	}
	if players, ok := fields["players"].(map[string]any); ok {
		names := lo.Keys(players)
		sort.Strings(names)
		row.Players = strings.Join(lo.Map(names, func(name string, _ int) string {
			score := 0.0
			if p, ok := players[name].(map[string]any); ok {
				score, _ = p["score"].(float64)
			}
			return fmt.Sprintf("%s:%d", name, int(score))
		}), " ")
	}
	if v, ok := fields["currentPlayer"].(string); ok {
		row.Detail = "buzz: " + v
	} else if v, ok := fields["text"].(string); ok {
		row.Detail = v
	}
	return row
}
