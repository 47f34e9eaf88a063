package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/rs/zerolog/log"

	"oscar/generation"
	"oscar/state"
)

// sandboxPolicy runs generated documents in an opaque origin
const sandboxPolicy = "sandbox allow-scripts"

var indexTemplate = template.Must(template.New("index").Funcs(sprig.FuncMap()).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Oscar canvas</title>
<style>
  html, body { margin: 0; height: 100%; background: #0a0a0a; font-family: sans-serif; }
  .grid { display: grid; gap: 12px; padding: 12px; height: calc(100% - 24px); box-sizing: border-box; }
  .single { grid-template-columns: 1fr; }
  .quadrant { grid-template-columns: 1fr 1fr; grid-template-rows: 1fr 1fr; }
  .slot { position: relative; border-radius: 6px; overflow: hidden; background: #fff; }
  .slot.empty { background: #171717; border: 1px dashed #262626; color: #737373;
    display: flex; align-items: center; justify-content: center; font-size: 12px; }
  .label { position: absolute; top: 8px; left: 8px; z-index: 1; font-size: 10px;
    background: rgba(0,0,0,.7); color: #fff; padding: 2px 6px; border-radius: 4px; border: 0; cursor: pointer; }
  iframe { width: 100%; height: 100%; border: 0; }
</style>
</head>
<body>
<div class="grid {{ .Mode }}">
{{- range $i, $slot := .Slots }}
  {{- if $slot.Present }}
  <div class="slot">
    {{- if eq $.Mode "quadrant" }}
    <button class="label" title="Show {{ $slot.Title | default "this variant" }}" onclick="fetch('/canvas/{{ $i }}/select', {method: 'POST'})">{{ add1 $i }}</button>
    {{- end }}
    <iframe sandbox="allow-scripts" title="{{ $slot.Title | default "HTML Preview" }}" src="/canvas/{{ $i }}?rev={{ $.Revision }}"></iframe>
  </div>
  {{- else }}
  <div class="slot empty">Empty</div>
  {{- end }}
{{- end }}
</div>
<script>
  const events = new EventSource('/events');
  events.onmessage = () => {};
  for (const type of ['canvas_replaced', 'view_mode_changed']) {
    events.addEventListener(type, () => location.reload());
  }
</script>
</body>
</html>
`))

type previewSlot struct {
	Present bool
	Title   string
}

type previewPage struct {
	Mode     state.ViewMode
	Slots    []previewSlot
	Revision string
}

// CanvasResponse is the body of GET /canvas
type CanvasResponse struct {
	Canvas   []string       `json:"canvas"`
	Slots    []string       `json:"slots"`
	Titles   []string       `json:"titles"`
	ViewMode state.ViewMode `json:"view_mode"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()

	page := previewPage{Mode: snap.ViewMode, Revision: revision(snap.Canvas)}
	padded := snap.Canvas.Padded()
	if snap.ViewMode == state.ViewSingle {
		padded = padded[:1]
	}
	for _, doc := range padded {
		page.Slots = append(page.Slots, previewSlot{Present: doc != "", Title: generation.Title(doc)})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := indexTemplate.Execute(w, page); err != nil {
		log.Error().Err(err).Msg("Failed to render preview page")
	}
}

func (s *Server) handleCanvas(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	resp := CanvasResponse{
		Canvas:   append([]string{}, snap.Canvas...),
		Slots:    snap.Canvas.Padded(),
		ViewMode: snap.ViewMode,
	}
	for _, doc := range resp.Slots {
		resp.Titles = append(resp.Titles, generation.Title(doc))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSlot(w http.ResponseWriter, r *http.Request) {
	slot, ok := parseSlot(r)
	if !ok {
		writeError(w, http.StatusNotFound, "no such canvas slot")
		return
	}
	doc := s.store.Snapshot().Canvas.Padded()[slot]
	if doc == "" {
		writeError(w, http.StatusNotFound, "canvas slot is empty")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Security-Policy", sandboxPolicy)
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write([]byte(doc))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	slot, ok := parseSlot(r)
	if !ok {
		writeError(w, http.StatusNotFound, "no such canvas slot")
		return
	}
	if err := s.store.SelectVariant(slot); err != nil {
		if errors.Is(err, state.ErrNoSuchVariant) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// eventWriteTimeout bounds each SSE write so a stalled client is dropped
const eventWriteTimeout = 10 * time.Second

// handleEvents streams state events as Server-Sent Events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.Subscribe(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// send writes one frame under a deadline and flushes it
	send := func(frame string) error {
		if err := rc.SetWriteDeadline(time.Now().Add(eventWriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		if _, err := io.WriteString(w, frame); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send(": connected\n\n"); err != nil {
		log.Warn().Err(err).Msg("Event stream cannot flush")
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := send(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, data)); err != nil {
				log.Debug().Err(err).Msg("Event stream client dropped")
				return
			}
		}
	}
}

func parseSlot(r *http.Request) (int, bool) {
	slot, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil || slot < 0 || slot >= state.QuadrantSlots {
		return 0, false
	}
	return slot, true
}

// revision changes whenever the canvas does so iframes are not served stale
func revision(c state.Canvas) string {
	h := fnv.New64a()
	for _, doc := range c {
		_, _ = h.Write([]byte(doc))
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 36)
}
