package content

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/playperu/storyline/internal/storyline"
)

//go:embed data
var embedded embed.FS

// Catalog is the validated, read-only narrative configuration.
type Catalog struct {
	Characters   []string       `yaml:"characters" validate:"required,min=1"`
	Achievements []Achievement  `yaml:"achievements" validate:"required,dive"`
	Gallery      []GalleryItem  `yaml:"gallery" validate:"dive"`
	Library      []LibraryEntry `yaml:"library" validate:"dive"`

	chapters map[int]*Chapter
	order    []int
}

// Default loads the catalog compiled into the binary.
func Default() (*Catalog, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, fmt.Errorf("opening embedded content: %w", err)
	}
	return Load(sub)
}

// Load reads catalog.yaml and chapters/*.yaml from fsys and validates them.
func Load(fsys fs.FS) (*Catalog, error) {
	raw, err := fs.ReadFile(fsys, "catalog.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	files, err := fs.Glob(fsys, "chapters/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("listing chapters: %w", err)
	}
	c.chapters = make(map[int]*Chapter, len(files))
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		ch := new(Chapter)
		if err := yaml.Unmarshal(data, ch); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path.Base(name), err)
		}
		if _, dup := c.chapters[ch.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate chapter id %d", path.Base(name), ch.ID)
		}
		c.chapters[ch.ID] = ch
		c.order = append(c.order, ch.ID)
	}
	sort.Ints(c.order)

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Chapter returns the chapter with the given id. An unknown id is NotFound;
// no other chapter is substituted.
func (c *Catalog) Chapter(id int) (*Chapter, error) {
	ch, ok := c.chapters[id]
	if !ok {
		return nil, storyline.Newf(storyline.CodeNotFound, "chapter %d not found", id)
	}
	return ch, nil
}

// Chapters returns all chapters ordered by id.
func (c *Catalog) Chapters() []*Chapter {
	out := make([]*Chapter, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.chapters[id])
	}
	return out
}

// ChapterCount is the number of configured chapters.
func (c *Catalog) ChapterCount() int {
	return len(c.order)
}

// Achievement returns the catalogue entry with the given id.
func (c *Catalog) Achievement(id string) (Achievement, bool) {
	for _, a := range c.Achievements {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// Endings returns the distinct ending ids selectable by any choice.
func (c *Catalog) Endings() []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range c.order {
		for _, s := range c.chapters[id].Scenes {
			for _, ch := range s.Choices {
				if ch.Ending != "" && !seen[ch.Ending] {
					seen[ch.Ending] = true
					out = append(out, ch.Ending)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	if len(c.order) == 0 {
		return errors.New("catalog: no chapters configured")
	}
	for i, id := range c.order {
		if id != i+1 {
			return fmt.Errorf("catalog: chapter ids must be contiguous from 1, got %d at position %d", id, i+1)
		}
	}

	var errs []error
	for _, id := range c.order {
		ch := c.chapters[id]
		if err := v.Struct(ch); err != nil {
			errs = append(errs, fmt.Errorf("chapter %d: %w", id, err))
			continue
		}
		errs = append(errs, validateChapter(ch)...)
		if ch.Character != "" && !slices.Contains(c.Characters, ch.Character) {
			errs = append(errs, fmt.Errorf("chapter %d: unknown character %q", id, ch.Character))
		}
	}

	seen := map[string]bool{}
	for _, a := range c.Achievements {
		if seen[a.ID] {
			errs = append(errs, fmt.Errorf("achievement %q: duplicate id", a.ID))
		}
		seen[a.ID] = true
	}
	for _, g := range c.Gallery {
		if g.ChapterRequired > len(c.order) {
			errs = append(errs, fmt.Errorf("gallery %q: requires unknown chapter %d", g.ID, g.ChapterRequired))
		}
	}
	for _, l := range c.Library {
		if l.ChapterRequired > len(c.order) {
			errs = append(errs, fmt.Errorf("library %q: requires unknown chapter %d", l.ID, l.ChapterRequired))
		}
	}
	return errors.Join(errs...)
}

func validateChapter(ch *Chapter) []error {
	var errs []error
	ids := make(map[string]bool, len(ch.Scenes))
	for _, s := range ch.Scenes {
		if ids[s.ID] {
			errs = append(errs, fmt.Errorf("chapter %d: duplicate scene id %q", ch.ID, s.ID))
		}
		ids[s.ID] = true
	}
	for _, s := range ch.Scenes {
		for _, choice := range s.Choices {
			if choice.Next != "" && !ids[choice.Next] {
				errs = append(errs, fmt.Errorf("chapter %d: scene %q choice %q jumps to unknown scene %q",
					ch.ID, s.ID, choice.ID, choice.Next))
			}
		}
	}
	for _, q := range ch.Quiz {
		if q.Answer >= len(q.Options) {
			errs = append(errs, fmt.Errorf("chapter %d: question %q answer %d out of range", ch.ID, q.ID, q.Answer))
		}
	}
	return errs
}

// QuizScore grades answers against the chapter quiz and returns
// round(correct/total*100). A chapter without questions scores 100.
func (c *Chapter) QuizScore(answers []int) (int, error) {
	if len(c.Quiz) == 0 {
		return storyline.MaxScore, nil
	}
	if len(answers) != len(c.Quiz) {
		return 0, storyline.Newf(storyline.CodeInvalidInput,
			"expected %d answers, got %d", len(c.Quiz), len(answers))
	}
	correct := 0
	for i, q := range c.Quiz {
		if answers[i] == q.Answer {
			correct++
		}
	}
	return (correct*200 + len(c.Quiz)) / (2 * len(c.Quiz)), nil
}
