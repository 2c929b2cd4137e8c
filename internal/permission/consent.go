// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package permission

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	answerGranted = "granted"
	answerDenied  = "denied"
)

var (
	ErrNoAnswer          = errors.New("no answer to the location permission prompt")
	ErrPrompterRequired  = errors.New("prompter is required")
	ErrInvalidConsentRec = errors.New("invalid consent record")
)

// Prompter asks the user a yes/no question.
type Prompter interface {
	Prompt(ctx context.Context) (bool, error)
}

// ConsentCapability stores the user's answer in a file. The prompt is only shown while no
// answer is stored.
type ConsentCapability struct {
	mu       sync.Mutex
	path     string
	prompter Prompter
}

// NewConsentCapability returns a capability backed by the consent file at path.
func NewConsentCapability(path string, prompter Prompter) (*ConsentCapability, error) {
	if prompter == nil {
		return nil, ErrPrompterRequired
	}
	return &ConsentCapability{path: path, prompter: prompter}, nil
}

func (c *ConsentCapability) Name() string {
	return CapabilityConsent
}

// Check reports whether a granting answer is stored. A missing file means not granted.
func (c *ConsentCapability) Check(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	granted, _, err := c.read()
	return granted, err
}

// Request returns the stored answer or, if there is none, prompts and stores the answer.
func (c *ConsentCapability) Request(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	granted, stored, err := c.read()
	if err != nil {
		return false, err
	}
	if stored {
		return granted, nil
	}

	granted, err = c.prompter.Prompt(ctx)
	if err != nil {
		return false, err
	}
	return granted, c.write(granted)
}

// Reset removes the stored answer.
func (c *ConsentCapability) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove consent file: %w", err)
	}
	return nil
}

func (c *ConsentCapability) read() (granted, stored bool, err error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read consent file: %w", err)
	}
	switch strings.TrimSpace(string(data)) {
	case answerGranted:
		return true, true, nil
	case answerDenied:
		return false, true, nil
	default:
		return false, false, fmt.Errorf("%w in %s", ErrInvalidConsentRec, c.path)
	}
}

func (c *ConsentCapability) write(granted bool) error {
	answer := answerDenied
	if granted {
		answer = answerGranted
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("failed to create consent directory: %w", err)
	}
	if err := os.WriteFile(c.path, []byte(answer+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write consent file: %w", err)
	}
	return nil
}

// TerminalPrompter asks the question on out and reads the answer from in. Answers starting with
// y, s or j (yes, sí, ja) grant access.
//
// In is read by a single goroutine that lives until in is exhausted. A prompt that is cancelled
// leaves its line to the next prompt.
type TerminalPrompter struct {
	Question string
	In       io.Reader
	Out      io.Writer

	once  sync.Once
	lines chan promptLine
}

type promptLine struct {
	line string
	err  error
}

func (p *TerminalPrompter) Prompt(ctx context.Context) (bool, error) {
	p.once.Do(p.startReader)
	if _, err := fmt.Fprintf(p.Out, "%s [y/N] ", p.Question); err != nil {
		return false, fmt.Errorf("failed to write prompt: %w", err)
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a, ok := <-p.lines:
		if !ok || (a.err != nil && (!errors.Is(a.err, io.EOF) || strings.TrimSpace(a.line) == "")) {
			return false, ErrNoAnswer
		}
		reply := strings.ToLower(strings.TrimSpace(a.line))
		return reply != "" && strings.ContainsRune("ysj", rune(reply[0])), nil
	}
}

// startReader feeds the lines of In to the prompts. lines is closed once In returns an error.
func (p *TerminalPrompter) startReader() {
	p.lines = make(chan promptLine)
	go func() {
		defer close(p.lines)
		reader := bufio.NewReader(p.In)
		for {
			line, err := reader.ReadString('\n')
			p.lines <- promptLine{line, err}
			if err != nil {
				return
			}
		}
	}()
}
