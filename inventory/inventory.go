// Copyright (c) 2026 Aggravator Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package inventory resolves a merged inventory document for one
// environment by driving the fetch, decode and merge pipeline over the
// environment's declared include list, in order.
package inventory

import (
	"context"
	"net/http"
	"sort"

	"github.com/aggravator/aggravator/decode"
	"github.com/aggravator/aggravator/document"
	"github.com/aggravator/aggravator/document/key"
	"github.com/aggravator/aggravator/source"

	"go.uber.org/zap"
)

// EnvironmentRequiredError occurs when a merge is requested but no
// environment name could be resolved from any input.
type EnvironmentRequiredError struct{}

// Error implements the error interface.
func (EnvironmentRequiredError) Error() string {
	return "missing environment name, use --env or export INVENTORY_ENV"
}

// UnknownEnvironmentError occurs when the requested environment is not
// declared in the root config.
type UnknownEnvironmentError struct {
	Name  string
	Known []string
}

// Error implements the error interface.
func (e UnknownEnvironmentError) Error() string {
	return "unknown environment: " + e.Name
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used to report pipeline progress. The
// default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Resolver) {
		r.log = log
	}
}

// WithDecryptor sets the decryption capability handed to the decoder.
func WithDecryptor(d decode.Decryptor) Option {
	return func(r *Resolver) {
		r.decryptor = d
	}
}

// WithHTTPClient overrides the http.Client used for http(s) locations.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		r.httpClient = c
	}
}

// WithBase seeds every resolve pass with a copy of doc instead of an
// empty accumulator. The caller keeps ownership of doc.
func WithBase(doc document.Map) Option {
	return func(r *Resolver) {
		r.base = doc
	}
}

// WithNormalize registers a rewrite applied to the accumulator before
// each merge step.
func WithNormalize(f func(document.Map)) Option {
	return func(r *Resolver) {
		r.normalize = f
	}
}

// Resolver loads a root config and resolves merged inventory documents
// from it. A Resolver is not safe for concurrent use: each resolve
// pass owns its accumulator exclusively.
type Resolver struct {
	uri string
	cfg RootConfig

	fetcher   *source.Fetcher
	decoder   *decode.Decoder
	log       *zap.Logger
	decryptor decode.Decryptor

	httpClient *http.Client
	base       document.Map
	normalize  func(document.Map)
}

// New fetches and decodes the root config at uri and returns a
// Resolver for it. Relative include locations will resolve against
// uri; uri itself resolves against the working directory.
func New(ctx context.Context, uri string, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		uri: uri,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	var fetchOpts []source.Option
	if r.httpClient != nil {
		fetchOpts = append(fetchOpts, source.WithHTTPClient(r.httpClient))
	}
	r.fetcher = source.New(uri, fetchOpts...)
	r.decoder = decode.New(r.decryptor)

	b, err := source.New("", fetchOpts...).Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	doc, err := r.decoder.Decode(b, "", uri)
	if err != nil {
		return nil, err
	}
	r.cfg, err = decodeRootConfig(doc, uri)
	if err != nil {
		return nil, err
	}

	r.log.Debug("loaded root config",
		zap.String("uri", uri),
		zap.Int("environments", len(r.cfg.Environments)))
	return r, nil
}

// EnvironmentNames returns the declared environment names, sorted.
func (r *Resolver) EnvironmentNames() []string {
	names := make([]string, 0, len(r.cfg.Environments))
	for name := range r.cfg.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tree returns the include layout for display: the full environments
// mapping when env is empty, otherwise the selected environment's
// config.
func (r *Resolver) Tree(env string) (any, error) {
	if env == "" {
		return r.cfg.Environments, nil
	}
	cfg, ok := r.cfg.Environments[env]
	if !ok {
		return nil, UnknownEnvironmentError{Name: env, Known: r.EnvironmentNames()}
	}
	return cfg, nil
}

// Resolve merges the selected environment's include list, in declared
// order, and returns the final document. The first failing entry
// aborts the whole pass: entries may build on earlier ones, so
// skipping one would silently change the result.
func (r *Resolver) Resolve(ctx context.Context, env string) (document.Map, error) {
	cfg, ok := r.cfg.Environments[env]
	if !ok {
		return nil, UnknownEnvironmentError{Name: env, Known: r.EnvironmentNames()}
	}

	acc := document.Map{}
	if r.base != nil {
		acc = document.Copy(r.base).(document.Map)
	}

	for i, entry := range cfg.Include {
		if r.normalize != nil {
			r.normalize(acc)
		}

		r.log.Debug("merging include entry",
			zap.Int("index", i),
			zap.String("path", entry.Path),
			zap.String("key", entry.Key),
			zap.String("format", entry.Format))

		b, err := r.fetcher.Fetch(ctx, entry.Path)
		if err != nil {
			return nil, err
		}
		doc, err := r.decoder.Decode(b, entry.Format, entry.Path)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			// empty source, nothing to merge
			continue
		}
		acc, err = document.MergeAt(acc, doc, key.Parse(entry.Key))
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}
