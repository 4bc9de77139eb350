// Copyright (c) 2026 Aggravator Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package inventory

import (
	"sort"

	"github.com/aggravator/aggravator/document"
)

// AnsibleBase returns the seed document expected by the Ansible dynamic
// inventory protocol: an empty hostvars table and the platform name of
// the environment being resolved.
func AnsibleBase(env string) document.Map {
	return document.Map{
		"_meta": document.Map{
			"hostvars": document.Map{},
		},
		"all": document.Map{
			"vars": document.Map{
				"platform_name": env,
			},
		},
	}
}

// NormalizeHostGroups rewrites top level groups declared as plain host
// lists into their mapping form, {hosts: [...]}, so that later entries
// can deep merge vars into them.
func NormalizeHostGroups(doc document.Map) {
	for group, v := range doc {
		if hosts, ok := v.([]any); ok {
			doc[group] = document.Map{"hosts": hosts}
		}
	}
}

// Groups returns the sorted group names of a merged inventory. The
// _meta bookkeeping key is not a group.
func Groups(doc document.Map) []string {
	groups := make([]string, 0, len(doc))
	for name := range doc {
		if name == "_meta" {
			continue
		}
		groups = append(groups, name)
	}
	sort.Strings(groups)
	return groups
}
