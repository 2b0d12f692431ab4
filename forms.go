package main

import (
	"facecrop/internal/crop"
	"facecrop/internal/facematch"
)

// Form is one upload flow: a photo field cropped in the browser and submitted
// with the form's fields to a backend endpoint.
type Form struct {
	Name     string
	Title    string
	Endpoint facematch.Endpoint
	Field    *crop.Field
}

// Forms holds the upload flows by name. All flows share one rasterizer, so
// they produce files with the same name, type and quality.
type Forms struct {
	order []*Form
	byKey map[string]*Form
}

func NewForms(blobs *crop.BlobStore, opts crop.Options) *Forms {
	r := crop.NewRasterizer(blobs, opts)
	forms := &Forms{byKey: make(map[string]*Form)}
	forms.add(&Form{
		Name:     "lost",
		Title:    "Report Lost Person",
		Endpoint: facematch.LostEndpoint,
		Field:    crop.NewField("lost", r, opts.Aspect),
	})
	forms.add(&Form{
		Name:     "found",
		Title:    "Upload Found Person",
		Endpoint: facematch.FoundEndpoint,
		Field:    crop.NewField("found", r, opts.Aspect),
	})
	forms.add(&Form{
		Name:     "live",
		Title:    "Upload Live Feed Frame",
		Endpoint: facematch.LiveFeedEndpoint,
		Field:    crop.NewField("live", r, opts.Aspect),
	})
	return forms
}

func (f *Forms) add(form *Form) {
	f.order = append(f.order, form)
	f.byKey[form.Name] = form
}

func (f *Forms) Get(name string) (*Form, bool) {
	form, ok := f.byKey[name]
	return form, ok
}

func (f *Forms) All() []*Form {
	return f.order
}
