package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/runbox/internal/language"
	"github.com/michaelbrown/runbox/internal/protocol"
	"github.com/michaelbrown/runbox/internal/workspace"
)

var (
	langFlag  string
	entryFlag string
)

var runCmd = &cobra.Command{
	Use:   "run <file>...",
	Short: "Compile and run source files on a runbox server",
	Long: `Submit source files for compilation, then attach an interactive
session: lines you type are sent to the program's stdin, its output is
printed as it arrives.

Examples:
  runbox run Main.java
  runbox run --lang python main.py
  runbox run --lang java --entry App App.java Util.java`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&langFlag, "lang", "java", "Language to compile/run")
	runCmd.Flags().StringVar(&entryFlag, "entry", "", "Entry point (default derived from the first file)")
	rootCmd.AddCommand(runCmd)
}

type compileReply struct {
	Token       string                `json:"token"`
	OK          bool                  `json:"ok"`
	Diagnostics []language.Diagnostic `json:"diagnostics"`
	CompileLog  string                `json:"compileLog"`
}

func runRun(cmd *cobra.Command, args []string) error {
	var files []workspace.File
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		files = append(files, workspace.File{
			Path:    filepath.Base(path),
			Content: string(content),
		})
	}

	entry := entryFlag
	if entry == "" {
		entry = defaultEntry(langFlag, files[0].Path)
	}

	reply, err := compile(serverFlag, langFlag, entry, files)
	if err != nil {
		return err
	}

	for _, d := range reply.Diagnostics {
		fmt.Fprintf(os.Stderr, "%s:%d:%d: %s: %s\n", d.File, d.Line, d.Column, d.Severity, d.Message)
	}
	if !reply.OK {
		if len(reply.Diagnostics) == 0 && reply.CompileLog != "" {
			fmt.Fprintln(os.Stderr, strings.TrimSpace(reply.CompileLog))
		}
		return fmt.Errorf("compilation failed")
	}

	return attach(serverFlag, reply.Token)
}

// defaultEntry derives the entry point from the first file: the class name
// for java, the file itself for interpreted languages.
func defaultEntry(lang, first string) string {
	if lang == "java" {
		return strings.TrimSuffix(first, filepath.Ext(first))
	}
	return first
}

func compile(server, lang, entry string, files []workspace.File) (*compileReply, error) {
	body, err := json.Marshal(map[string]any{
		"language":   lang,
		"entryPoint": entry,
		"files":      files,
	})
	if err != nil {
		return nil, err
	}

	resp, err := http.Post(server+"/compile", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("contacting server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var reply compileReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &reply, nil
}

// attach opens the interactive channel and bridges it to the terminal:
// frames out, lines in.
func attach(server, token string) error {
	wsURL, err := termURL(server, token)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer conn.Close()

	done := make(chan int, 1)
	go func() {
		for {
			var f protocol.Frame
			if err := conn.ReadJSON(&f); err != nil {
				done <- -1
				return
			}
			switch f.Type {
			case protocol.FrameStdout:
				fmt.Print(f.Data)
			case protocol.FrameStatus:
				fmt.Fprintf(os.Stderr, "[%s]\n", f.Message)
			case protocol.FrameExit:
				code := 0
				if f.Code != nil {
					code = *f.Code
				}
				done <- code
				return
			}
		}
	}()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "",
		InterruptPrompt: "^C",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	input := make(chan string)
	go func() {
		defer close(input)
		for {
			line, err := rl.Readline()
			if err != nil { // io.EOF or interrupt: stop the run
				return
			}
			input <- line + "\n"
		}
	}()

	for {
		select {
		case code := <-done:
			if code > 0 {
				return fmt.Errorf("process exited with code %d", code)
			}
			return nil
		case line, ok := <-input:
			if !ok {
				conn.WriteJSON(protocol.Frame{Type: protocol.FrameStop})
				code := <-done
				if code > 0 && code != protocol.ExitStopped {
					return fmt.Errorf("process exited with code %d", code)
				}
				return nil
			}
			if err := conn.WriteJSON(protocol.Frame{Type: protocol.FrameStdin, Data: line}); err != nil {
				return fmt.Errorf("sending input: %w", err)
			}
		}
	}
}

func termURL(server, token string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parsing server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/term"
	u.RawQuery = "token=" + url.QueryEscape(token)
	return u.String(), nil
}
