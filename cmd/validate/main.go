// Command validate checks quest catalog files before they ship. It
// validates a single file or a whole directory of quest YAML.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/archquest/quest-engine/pkg/quest"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <quest.yaml | quest-dir>\n", os.Args[0])
		os.Exit(1)
	}

	target := os.Args[1]
	validator := &QuestValidator{}

	info, err := os.Stat(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot read %s: %v\n", target, err)
		os.Exit(1)
	}

	if info.IsDir() {
		err = validator.validateDir(target)
	} else {
		err = validator.validateFile(target)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Quest catalog is valid!")
}

// QuestValidator accumulates errors across a file so authors see every
// problem in one run.
type QuestValidator struct {
	errors []string

	// seen tracks quest ids across the directory for duplicate and
	// prerequisite checks.
	seen map[string]*quest.Quest
}

func (v *QuestValidator) validateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	v.seen = make(map[string]*quest.Quest)
	var failed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := v.validateFile(path); err != nil {
			failed = append(failed, err.Error())
		}
	}

	if errs := v.crossQuestErrors(); len(errs) > 0 {
		failed = append(failed, errs...)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%s", strings.Join(failed, "\n"))
	}
	return nil
}

func (v *QuestValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	if !strings.HasSuffix(baseName, ".yaml") {
		return fmt.Errorf("quest file must have .yaml extension: %s", baseName)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	v.errors = nil

	var q quest.Quest
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&q); err != nil {
		return fmt.Errorf("file %s failed strict YAML unmarshaling: %w", filename, err)
	}

	v.validateQuest(&q, strings.TrimSuffix(baseName, ".yaml"))

	if v.seen != nil {
		if _, dup := v.seen[q.ID]; dup {
			v.errors = append(v.errors, fmt.Sprintf("duplicate quest id %q", q.ID))
		} else {
			v.seen[q.ID] = &q
		}
	}

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n  %s", filename, strings.Join(v.errors, "\n  "))
	}
	return nil
}

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

func (v *QuestValidator) validateQuest(q *quest.Quest, fileID string) {
	v.validateIDFormat("quest id", q.ID)
	if q.ID != fileID {
		v.errors = append(v.errors, fmt.Sprintf("quest id %q does not match filename %q", q.ID, fileID))
	}
	if q.Name == "" {
		v.errors = append(v.errors, "quest name is required")
	}

	switch q.Status {
	case quest.StatusAvailable, quest.StatusComingSoon:
	case "":
		// Empty status defaults to available at load time.
	default:
		v.errors = append(v.errors, fmt.Sprintf("unknown status %q", q.Status))
	}

	if q.IsComingSoon() {
		// Teasers are allowed to be chapterless.
		return
	}

	if len(q.Chapters) == 0 {
		v.errors = append(v.errors, "available quest must have at least one chapter")
	}

	chapterIDs := make(map[string]bool)
	for i := range q.Chapters {
		v.validateChapter(&q.Chapters[i], chapterIDs)
	}
}

func (v *QuestValidator) validateChapter(c *quest.Chapter, seen map[string]bool) {
	v.validateIDFormat("chapter id", c.ID)
	if seen[c.ID] {
		v.errors = append(v.errors, fmt.Sprintf("duplicate chapter id %q", c.ID))
	}
	seen[c.ID] = true

	if c.Name == "" {
		v.errors = append(v.errors, fmt.Sprintf("chapter %q has no name", c.ID))
	}
	if c.Goal != nil && c.Goal.Item == "" {
		v.errors = append(v.errors, fmt.Sprintf("chapter %q has a goal with no item", c.ID))
	}
	if c.ExitZone != nil && (c.ExitZone.Width <= 0 || c.ExitZone.Height <= 0) {
		v.errors = append(v.errors, fmt.Sprintf("chapter %q has a degenerate exit zone", c.ID))
	}
}

func (v *QuestValidator) validateIDFormat(kind, id string) {
	if id == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", kind))
		return
	}
	if !idPattern.MatchString(id) {
		v.errors = append(v.errors, fmt.Sprintf("%s %q must be lowercase kebab-case", kind, id))
	}
}

// crossQuestErrors checks prerequisite references once every file in
// the directory has been parsed.
func (v *QuestValidator) crossQuestErrors() []string {
	var errs []string
	for id, q := range v.seen {
		for _, prereq := range q.Prerequisites {
			if prereq == id {
				errs = append(errs, fmt.Sprintf("quest %q lists itself as a prerequisite", id))
				continue
			}
			if _, ok := v.seen[prereq]; !ok {
				errs = append(errs, fmt.Sprintf("quest %q requires unknown quest %q", id, prereq))
			}
		}
		if cycle := v.findCycle(id, map[string]bool{}); cycle {
			errs = append(errs, fmt.Sprintf("quest %q is part of a prerequisite cycle", id))
		}
	}
	return errs
}

func (v *QuestValidator) findCycle(id string, visiting map[string]bool) bool {
	if visiting[id] {
		return true
	}
	q, ok := v.seen[id]
	if !ok {
		return false
	}
	visiting[id] = true
	for _, prereq := range q.Prerequisites {
		if v.findCycle(prereq, visiting) {
			return true
		}
	}
	visiting[id] = false
	return false
}
