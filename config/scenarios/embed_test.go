// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scenarios_test

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/veescrow/config/scenarios"
	"github.com/blinklabs-io/veescrow/internal/scenario"
)

func TestSampleScenariosRun(t *testing.T) {
	files, err := fs.Glob(scenarios.FS, "*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, name := range files {
		t.Run(name, func(t *testing.T) {
			buf, err := scenarios.FS.ReadFile(name)
			require.NoError(t, err)
			sc, err := scenario.Parse(buf)
			require.NoError(t, err)
			runner, err := scenario.NewRunner(sc, nil)
			require.NoError(t, err)
			defer func() {
				require.NoError(t, runner.Stop())
			}()
			results, err := runner.Run(context.Background())
			require.NoError(t, err)
			require.Len(t, results, len(sc.Steps))
		})
	}
}
