package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mohammad-safakhou/pharmaverse/internal/agent/core"
	"github.com/mohammad-safakhou/pharmaverse/internal/queue/streams"
	srv "github.com/mohammad-safakhou/pharmaverse/internal/server"
	"github.com/mohammad-safakhou/pharmaverse/session"
	"github.com/spf13/cobra"
)

type styles struct {
	sender  lipgloss.Style
	agent   lipgloss.Style
	running lipgloss.Style
	done    lipgloss.Style
	failed  lipgloss.Style
	detail  lipgloss.Style
	faint   lipgloss.Style
}

func newStyles() styles {
	return styles{
		sender:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		agent:   lipgloss.NewStyle().Bold(true),
		running: lipgloss.NewStyle().Foreground(lipgloss.Color("221")),
		done:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		failed:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		detail:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		faint:   lipgloss.NewStyle().Faint(true),
	}
}

// wireEvent is a streams.Event with its payload left undecoded.
type wireEvent struct {
	Type      streams.EventType `json:"type"`
	SessionID string            `json:"session_id"`
	Payload   json.RawMessage   `json:"payload"`
}

func watchCMD() *cobra.Command {
	var server string
	var watch = &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Follow the live events of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return follow(ctx, server, args[0], cmd.OutOrStdout())
		},
	}
	watch.Flags().StringVar(&server, "server", getenv("PHARMAVERSE_SERVER", "http://localhost:8000"), "API base URL")
	return watch
}

func analyzeCMD() *cobra.Command {
	var server string
	var req srv.OrchestrateRequest
	var analyze = &cobra.Command{
		Use:   "analyze",
		Short: "Start an analysis and follow it until it finishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			body, err := json.Marshal(req)
			if err != nil {
				return err
			}
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(server, "/")+"/api/orchestrate", bytes.NewReader(body))
			if err != nil {
				return err
			}
			httpReq.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusAccepted {
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				return fmt.Errorf("orchestrate: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
			}
			var started srv.OrchestrateResponse
			if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s: %s\n", started.SessionID, strings.Join(started.AgentsLaunched, ", "))
			return follow(ctx, server, started.SessionID, cmd.OutOrStdout())
		},
	}
	analyze.Flags().StringVar(&server, "server", getenv("PHARMAVERSE_SERVER", "http://localhost:8000"), "API base URL")
	analyze.Flags().StringVar(&req.MoleculeName, "molecule", "", "molecule name")
	analyze.Flags().StringVar(&req.Indication, "indication", "", "indication")
	analyze.Flags().StringVar(&req.Geography, "geography", "", "geography (default Global)")
	analyze.Flags().StringVar(&req.Timeframe, "timeframe", "", "timeframe (default 2024-2026)")
	analyze.Flags().StringVar(&req.StrategicQuestion, "question", "", "strategic question")
	_ = analyze.MarkFlagRequired("molecule")
	return analyze
}

func follow(ctx context.Context, server, sessionID string, out io.Writer) error {
	url := strings.TrimSuffix(server, "/") + "/api/session/" + sessionID + "/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream %s: %s", sessionID, resp.Status)
	}
	st := newStyles()
	err = readEvents(resp.Body, func(ev wireEvent) (bool, error) {
		line, last := st.render(ev)
		if line != "" {
			fmt.Fprintln(out, line)
		}
		return last, nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readEvents parses an event stream and hands each decoded event to fn until
// fn reports the stream is finished or the body ends.
func readEvents(r io.Reader, fn func(wireEvent) (bool, error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var ev wireEvent
			err := json.Unmarshal([]byte(data.String()), &ev)
			data.Reset()
			if err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			last, err := fn(ev)
			if err != nil || last {
				return err
			}
		}
	}
	return scanner.Err()
}

// render formats one event; the bool is true for the final snapshot of a run.
func (st styles) render(ev wireEvent) (string, bool) {
	switch ev.Type {
	case streams.EventChatMessage:
		var p streams.ChatPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return "", false
		}
		return st.sender.Render(p.Sender+":") + " " + st.detail.Render(p.Message), false
	case streams.EventAgentStatus:
		var p streams.AgentStatusPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return "", false
		}
		status := st.running
		switch p.Status {
		case streams.AgentDone:
			status = st.done
		case streams.AgentError:
			status = st.failed
		}
		return fmt.Sprintf("%s %s %s", st.agent.Render(p.Agent), status.Render("["+p.Status+"]"), st.faint.Render(p.Message)), false
	case streams.EventAgentResult:
		var p streams.AgentResultPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return "", false
		}
		return st.agent.Render(p.Agent) + " " + st.detail.Render(core.FirstSentences(p.Summary, 1)), false
	case streams.EventSessionData:
		var p streams.SessionPayload
		if json.Unmarshal(ev.Payload, &p) != nil || p.Session == nil {
			return "", false
		}
		s := p.Session
		line := fmt.Sprintf("%s %d%% (%s)", st.agent.Render(string(s.Status)), s.Progress(), s.Stage)
		if s.ReportRef != nil && s.ReportRef.DownloadPath != "" {
			line += " " + st.faint.Render("report: "+s.ReportRef.DownloadPath)
		}
		if s.Error != "" {
			line += " " + st.failed.Render(s.Error)
		}
		return line, s.Status != session.StatusProcessing
	}
	return "", false
}
