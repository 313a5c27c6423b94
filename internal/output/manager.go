package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

type FunctionOutput struct {
	ID          int
	Name        string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
	Index       int
}

type ErrorReport struct {
	FunctionName string
	Error        error
	Time         time.Time
}

type Manager struct {
	outputs       map[string]*FunctionOutput
	mutex         sync.RWMutex
	numLines      int
	maxStreams    int // Max output stream lines per function
	errors        []ErrorReport
	doneCh        chan struct{}
	displayTick   time.Duration
	functionCount int
	displayWg     sync.WaitGroup
}

func NewManager() *Manager {
	return &Manager{
		outputs:     make(map[string]*FunctionOutput),
		errors:      []ErrorReport{},
		maxStreams:  10,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) RegisterFunction(name string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.functionCount++
	m.outputs[fmt.Sprint(m.functionCount)] = &FunctionOutput{
		ID:          m.functionCount,
		Name:        name,
		Status:      "pending",
		StreamLines: []string{},
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
		Index:       m.functionCount,
	}
	return m.functionCount
}

func (m *Manager) SetMessage(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[fmt.Sprint(id)]; exists {
		info.Message = message
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) SetStatus(id int, status string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[fmt.Sprint(id)]; exists {
		info.Status = status
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) Complete(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[fmt.Sprint(id)]; exists {
		info.StreamLines = []string{}
		if message == "" {
			info.Message = fmt.Sprintf("Completed %s", info.Name)
		} else {
			info.Message = message
		}
		info.Complete = true
		info.Status = "success"
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) ReportError(id int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[fmt.Sprint(id)]; exists {
		info.Complete = true
		info.Status = "error"
		info.Error = err
		info.LastUpdated = time.Now()
		m.errors = append(m.errors, ErrorReport{
			FunctionName: info.Name,
			Error:        err,
			Time:         time.Now(),
		})
	}
}

func (m *Manager) AddStreamLine(id int, line string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[fmt.Sprint(id)]; exists {
		wrappedLines := wrapText(line, 2+4)
		info.StreamLines = append(info.StreamLines, wrappedLines...)
		if len(info.StreamLines) > m.maxStreams {
			info.StreamLines = info.StreamLines[len(info.StreamLines)-m.maxStreams:]
		}
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) AddProgressBarToStream(id int, outof, final int64, text string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[fmt.Sprint(id)]; exists {
		progressBar := PrintProgressBar(max(0, outof), final, 30)
		elapsed := time.Since(info.StartTime).Round(time.Second).Seconds()
		display := fmt.Sprintf("%s%s %s %s", progressBar, debugStyle.Render(text), StyleSymbols["bullet"], debugStyle.Render(FormatSpeed(outof, elapsed)))
		info.StreamLines = []string{display} // Set as only stream so nothing else is displayed
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) ClearAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for id := range m.outputs {
		m.outputs[id].StreamLines = []string{}
	}
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case "success", "pass":
		return successStyle.Render(StyleSymbols["pass"])
	case "error", "fail":
		return errorStyle.Render(StyleSymbols["fail"])
	case "warning":
		return warningStyle.Render(StyleSymbols["warning"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func (m *Manager) sortFunctions() (active, pending, completed []*FunctionOutput) {
	var allFuncs []*FunctionOutput
	for _, info := range m.outputs {
		allFuncs = append(allFuncs, info)
	}
	sort.Slice(allFuncs, func(i, j int) bool {
		return allFuncs[i].Index < allFuncs[j].Index
	})
	for _, f := range allFuncs {
		if f.Complete {
			completed = append(completed, f)
		} else if f.Status == "pending" && f.Message == "" {
			pending = append(pending, f)
		} else {
			active = append(active, f)
		}
	}
	return active, pending, completed
}

func (m *Manager) styledMessage(info *FunctionOutput) string {
	switch info.Status {
	case "success":
		return successStyle.Render(info.Message)
	case "error":
		return errorStyle.Render(info.Message)
	case "warning":
		return warningStyle.Render(info.Message)
	default:
		return pendingStyle.Render(info.Message)
	}
}

func (m *Manager) printStreamLines(info *FunctionOutput, lineCount, availableLines int) int {
	if len(info.StreamLines) == 0 || lineCount >= availableLines {
		return lineCount
	}
	indent := strings.Repeat(" ", 2+4)
	for _, line := range info.StreamLines {
		if lineCount >= availableLines {
			break
		}
		fmt.Printf("%s%s\n", indent, streamStyle.Render(line))
		lineCount++
	}
	return lineCount
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	_, termHeight, _ := term.GetSize(int(os.Stdout.Fd()))
	if termHeight <= 0 {
		termHeight = 24
	}
	availableLines := termHeight - 3

	if m.numLines > 0 {
		fmt.Printf("\033[%dA\033[J", m.numLines)
	}

	lineCount := 0
	activeFuncs, pendingFuncs, completedFuncs := m.sortFunctions()

	totalNeeded := 0
	for _, f := range activeFuncs {
		totalNeeded += 1 + len(f.StreamLines)
	}
	for _, f := range pendingFuncs {
		totalNeeded += 1 + len(f.StreamLines)
	}
	totalNeeded += len(completedFuncs)

	// Trim completed entries first when the terminal is short
	if totalNeeded > availableLines {
		maxCompleted := availableLines - (totalNeeded - len(completedFuncs))
		if maxCompleted < 0 {
			maxCompleted = 0
		}
		if len(completedFuncs) > maxCompleted {
			completedFuncs = completedFuncs[len(completedFuncs)-maxCompleted:]
		}
	}

	for _, info := range activeFuncs {
		if lineCount >= availableLines {
			break
		}
		elapsed := time.Since(info.StartTime).Round(time.Second)
		if info.Complete {
			elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		}
		fmt.Printf("%s%s %s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator(info.Status), debugStyle.Render(elapsed.String()), m.styledMessage(info))
		lineCount++
		lineCount = m.printStreamLines(info, lineCount, availableLines)
	}

	for _, info := range pendingFuncs {
		if lineCount >= availableLines {
			break
		}
		fmt.Printf("%s%s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator(info.Status), pendingStyle.Render("Waiting..."))
		lineCount++
		lineCount = m.printStreamLines(info, lineCount, availableLines)
	}

	if len(completedFuncs) > 10 && lineCount < availableLines {
		PrintInfo(fmt.Sprintf("%s%d jobs completed with hidden status ...", strings.Repeat(" ", 2), len(completedFuncs)-8))
		completedFuncs = completedFuncs[len(completedFuncs)-8:]
		lineCount++
	}

	for _, info := range completedFuncs {
		if lineCount >= availableLines {
			break
		}
		totalTime := info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		fmt.Printf("%s%s %s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator(info.Status), debugStyle.Render(totalTime.String()), m.styledMessage(info))
		lineCount++
		lineCount = m.printStreamLines(info, lineCount, availableLines)
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.ClearAll()
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Println()
	fmt.Println(strings.Repeat(" ", 2) + errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Printf("%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(fmt.Sprintf("Job: %s", err.FunctionName)))
		fmt.Printf("%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Println()
	var success, failures int
	for _, info := range m.outputs {
		if info.Status == "success" {
			success++
		} else if info.Status == "error" {
			failures++
		}
	}
	fmt.Println(strings.Repeat(" ", 2) + success2Style.Render(fmt.Sprintf("Completed %d of %d", success, len(m.outputs))))
	if failures > 0 {
		fmt.Println(strings.Repeat(" ", 2) + errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.outputs))))
	}
	m.displayErrors()
	fmt.Println()
}
