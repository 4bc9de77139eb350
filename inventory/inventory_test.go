// Copyright (c) 2026 Aggravator Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package inventory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aggravator/aggravator/document"
	"github.com/aggravator/aggravator/source"
	"github.com/aggravator/aggravator/vault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeFixtureTree lays out a root config with a test environment whose
// includes exercise root merging, key path targeting and overriding.
func writeFixtureTree(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	root := writeFile(t, dir, "config.yaml", `
environments:
  test:
    include:
      - path: inventory/test.yaml
      - path: vars/global.yaml
        key: all/vars
      - path: secrets/test.yaml
        key: all/vars
  prod:
    include:
      - path: inventory/prod.yaml
`)
	writeFile(t, dir, "inventory/test.yaml", `
web:
  hosts:
    - web1.test
    - web2.test
db:
  hosts:
    - db1.test
`)
	writeFile(t, dir, "vars/global.yaml", `
region: us-east-1
db_password: default
ntp_server: pool.ntp.org
`)
	writeFile(t, dir, "secrets/test.yaml", `
db_password: hunter2
`)
	return root
}

func TestNew(t *testing.T) {
	t.Run("will load the root config", func(t *testing.T) {
		t.Run("if it is a local yaml file", func(t *testing.T) {
			r, err := New(context.Background(), writeFixtureTree(t))
			require.NoError(t, err)

			assert.Equal(t, []string{"prod", "test"}, r.EnvironmentNames())
		})

		t.Run("if include entries are bare location strings", func(t *testing.T) {
			dir := t.TempDir()
			root := writeFile(t, dir, "config.yaml", `
environments:
  test:
    include:
      - inventory/test.yaml
`)
			writeFile(t, dir, "inventory/test.yaml", "web:\n  hosts: []\n")

			r, err := New(context.Background(), root)
			require.NoError(t, err)

			doc, err := r.Resolve(context.Background(), "test")
			require.NoError(t, err)
			assert.Contains(t, doc, "web")
		})

		t.Run("if it is served over http", func(t *testing.T) {
			files := map[string]string{
				"/inv/config.yaml": `
environments:
  test:
    include:
      - path: vars.yaml
`,
				"/inv/vars.yaml": "region: us\n",
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				content, ok := files[r.URL.Path]
				if !ok {
					http.NotFound(w, r)
					return
				}
				w.Write([]byte(content))
			}))
			defer srv.Close()

			r, err := New(context.Background(), srv.URL+"/inv/config.yaml")
			require.NoError(t, err)

			doc, err := r.Resolve(context.Background(), "test")
			require.NoError(t, err)
			assert.Equal(t, document.Map{"region": "us"}, doc)
		})
	})

	t.Run("will fail", func(t *testing.T) {
		t.Run("if the root config is unreachable", func(t *testing.T) {
			_, err := New(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))

			var serr source.SourceUnreachableError
			assert.ErrorAs(t, err, &serr)
		})

		t.Run("if the root config is not a mapping", func(t *testing.T) {
			root := writeFile(t, t.TempDir(), "config.yaml", "- just\n- a\n- list\n")

			_, err := New(context.Background(), root)

			var ierr InvalidRootConfigError
			assert.ErrorAs(t, err, &ierr)
		})

		t.Run("if an include entry has no path", func(t *testing.T) {
			root := writeFile(t, t.TempDir(), "config.yaml", `
environments:
  test:
    include:
      - key: all/vars
`)

			_, err := New(context.Background(), root)

			var ierr InvalidRootConfigError
			require.ErrorAs(t, err, &ierr)
			assert.Contains(t, ierr.Error(), "include[0]")
		})
	})
}

func TestResolver_Resolve(t *testing.T) {
	t.Run("will merge includes in declared order", func(t *testing.T) {
		t.Run("if entries target the root and nested key paths", func(t *testing.T) {
			r, err := New(context.Background(), writeFixtureTree(t))
			require.NoError(t, err)

			doc, err := r.Resolve(context.Background(), "test")
			require.NoError(t, err)

			// inventory/test.yaml keys land at the root
			assert.Contains(t, doc, "web")
			assert.Contains(t, doc, "db")

			// vars/global.yaml merged under all/vars, overridden
			// key by key by secrets/test.yaml
			vars := doc["all"].(document.Map)["vars"].(document.Map)
			assert.Equal(t, "us-east-1", vars["region"])
			assert.Equal(t, "pool.ntp.org", vars["ntp_server"])
			assert.Equal(t, "hunter2", vars["db_password"])
		})

		t.Run("if two entries override the same scalar", func(t *testing.T) {
			dir := t.TempDir()
			root := writeFile(t, dir, "config.yaml", `
environments:
  fwd:
    include:
      - path: x.yaml
        key: all/vars
      - path: y.yaml
        key: all/vars
  rev:
    include:
      - path: y.yaml
        key: all/vars
      - path: x.yaml
        key: all/vars
`)
			writeFile(t, dir, "x.yaml", "shared: x\n")
			writeFile(t, dir, "y.yaml", "shared: y\n")

			r, err := New(context.Background(), root)
			require.NoError(t, err)

			fwd, err := r.Resolve(context.Background(), "fwd")
			require.NoError(t, err)
			rev, err := r.Resolve(context.Background(), "rev")
			require.NoError(t, err)

			assert.Equal(t, "y", fwd["all"].(document.Map)["vars"].(document.Map)["shared"])
			assert.Equal(t, "x", rev["all"].(document.Map)["vars"].(document.Map)["shared"])
		})
	})

	t.Run("will seed the accumulator", func(t *testing.T) {
		t.Run("if a base document is configured", func(t *testing.T) {
			r, err := New(context.Background(), writeFixtureTree(t), WithBase(AnsibleBase("test")))
			require.NoError(t, err)

			doc, err := r.Resolve(context.Background(), "test")
			require.NoError(t, err)

			assert.Equal(t, document.Map{"hostvars": document.Map{}}, doc["_meta"])
			vars := doc["all"].(document.Map)["vars"].(document.Map)
			assert.Equal(t, "test", vars["platform_name"])
			assert.Equal(t, "hunter2", vars["db_password"])
		})

		t.Run("without sharing the base across passes", func(t *testing.T) {
			base := AnsibleBase("test")
			r, err := New(context.Background(), writeFixtureTree(t), WithBase(base))
			require.NoError(t, err)

			_, err = r.Resolve(context.Background(), "test")
			require.NoError(t, err)

			vars := base["all"].(document.Map)["vars"].(document.Map)
			assert.NotContains(t, vars, "db_password")
		})
	})

	t.Run("will normalize the accumulator before each merge", func(t *testing.T) {
		t.Run("if a host list group later receives vars", func(t *testing.T) {
			dir := t.TempDir()
			root := writeFile(t, dir, "config.yaml", `
environments:
  test:
    include:
      - path: groups.yaml
      - path: web.yaml
        key: web
`)
			writeFile(t, dir, "groups.yaml", "web:\n  - web1\n  - web2\n")
			writeFile(t, dir, "web.yaml", "vars:\n  port: 8080\n")

			r, err := New(context.Background(), root, WithNormalize(NormalizeHostGroups))
			require.NoError(t, err)

			doc, err := r.Resolve(context.Background(), "test")
			require.NoError(t, err)

			assert.Equal(t, document.Map{
				"web": document.Map{
					"hosts": []any{"web1", "web2"},
					"vars":  document.Map{"port": 8080},
				},
			}, doc)
		})
	})

	t.Run("will fail", func(t *testing.T) {
		t.Run("if the environment is not declared", func(t *testing.T) {
			r, err := New(context.Background(), writeFixtureTree(t))
			require.NoError(t, err)

			_, err = r.Resolve(context.Background(), "qa")

			var uerr UnknownEnvironmentError
			require.ErrorAs(t, err, &uerr)
			assert.Equal(t, "qa", uerr.Name)
			assert.Equal(t, []string{"prod", "test"}, uerr.Known)
		})

		t.Run("if any include entry is unreachable", func(t *testing.T) {
			// prod declares inventory/prod.yaml which the fixture
			// tree never writes
			r, err := New(context.Background(), writeFixtureTree(t))
			require.NoError(t, err)

			doc, err := r.Resolve(context.Background(), "prod")

			var serr source.SourceUnreachableError
			require.ErrorAs(t, err, &serr)
			assert.Nil(t, doc)
		})
	})

	t.Run("will leave encrypted scalars opaque", func(t *testing.T) {
		t.Run("if decryption is disabled", func(t *testing.T) {
			dir := t.TempDir()
			root := writeFile(t, dir, "config.yaml", `
environments:
  test:
    include:
      - path: secrets.yaml
        key: all/vars
`)
			writeFile(t, dir, "secrets.yaml", "db_password: !vault |\n  $ANSIBLE_VAULT;1.1;AES256\n  3132333435363738\n")

			r, err := New(context.Background(), root, WithDecryptor(vault.New(os.DevNull)))
			require.NoError(t, err)

			assert.Equal(t, []string{"test"}, r.EnvironmentNames())

			doc, err := r.Resolve(context.Background(), "test")
			require.NoError(t, err)

			vars := doc["all"].(document.Map)["vars"].(document.Map)
			assert.Contains(t, vars["db_password"], "$ANSIBLE_VAULT")
		})
	})
}

func TestResolver_Tree(t *testing.T) {
	t.Run("will return the full include layout", func(t *testing.T) {
		t.Run("if no environment is selected", func(t *testing.T) {
			r, err := New(context.Background(), writeFixtureTree(t))
			require.NoError(t, err)

			tree, err := r.Tree("")
			require.NoError(t, err)

			envs, ok := tree.(map[string]EnvironmentConfig)
			require.True(t, ok)
			assert.Len(t, envs, 2)
		})
	})

	t.Run("will return one environment's includes", func(t *testing.T) {
		t.Run("if an environment is selected", func(t *testing.T) {
			r, err := New(context.Background(), writeFixtureTree(t))
			require.NoError(t, err)

			tree, err := r.Tree("test")
			require.NoError(t, err)

			cfg, ok := tree.(EnvironmentConfig)
			require.True(t, ok)
			require.Len(t, cfg.Include, 3)
			assert.Equal(t, IncludeEntry{Path: "vars/global.yaml", Key: "all/vars"}, cfg.Include[1])
		})
	})

	t.Run("will fail", func(t *testing.T) {
		t.Run("if the selected environment is not declared", func(t *testing.T) {
			r, err := New(context.Background(), writeFixtureTree(t))
			require.NoError(t, err)

			_, err = r.Tree("qa")

			var uerr UnknownEnvironmentError
			assert.ErrorAs(t, err, &uerr)
		})
	})
}
