package progress

import (
	"github.com/playperu/storyline/internal/content"
	"github.com/playperu/storyline/internal/storyline"
)

type GalleryView struct {
	content.GalleryItem
	Unlocked bool `json:"isUnlocked"`
}

type LibraryView struct {
	content.LibraryEntry
	Unlocked bool `json:"isUnlocked"`
}

// Gallery marks each gallery item visible once its required chapter is
// completed.
func (a *Aggregator) Gallery(chapters storyline.ChapterProgressMap) []GalleryView {
	out := make([]GalleryView, 0, len(a.catalog.Gallery))
	for _, g := range a.catalog.Gallery {
		out = append(out, GalleryView{
			GalleryItem: g,
			Unlocked:    chapters.Lookup(g.ChapterRequired).IsCompleted,
		})
	}
	return out
}

// Library marks each library entry visible once its required chapter is
// completed. An empty section returns every section.
func (a *Aggregator) Library(chapters storyline.ChapterProgressMap, section string) []LibraryView {
	out := make([]LibraryView, 0, len(a.catalog.Library))
	for _, l := range a.catalog.Library {
		if section != "" && l.Section != section {
			continue
		}
		out = append(out, LibraryView{
			LibraryEntry: l,
			Unlocked:     chapters.Lookup(l.ChapterRequired).IsCompleted,
		})
	}
	return out
}
