// Command forge is the thin front end that proves the core wiring end
// to end: argument parsing, manifest loading, and registry transport
// are all out of core scope, so this binary hardcodes a single
// local-path root package and drives one Build.
package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"

	"github.com/integrii/flaggy"
	"github.com/jesseduffield/yaml"
	"github.com/samber/lo"

	"github.com/duffield-forge/forge/internal/forgeerr"
	"github.com/duffield-forge/forge/internal/manifest"
	"github.com/duffield-forge/forge/pkg/app"
	"github.com/duffield-forge/forge/pkg/config"
)

const DEFAULT_VERSION = "unversioned"

var (
	commit      string
	version     = DEFAULT_VERSION
	date        string
	buildSource = "unknown"

	configFlag    = false
	debuggingFlag = false
	releaseFlag   = false
	jobsFlag      = 0
	ccFlag        = ""
	targetFlag    = ""
	pkgNameFlag   = ""
	pkgVersFlag   = "0.1.0"
)

func main() {
	updateBuildInfo()

	info := fmt.Sprintf(
		"%s\nDate: %s\nBuildSource: %s\nCommit: %s\nOS: %s\nArch: %s",
		version,
		date,
		buildSource,
		commit,
		runtime.GOOS,
		runtime.GOARCH,
	)

	flaggy.SetName("forge")
	flaggy.SetDescription("Package-oriented build orchestrator core demo")
	flaggy.DefaultParser.AdditionalHelpPrepend = "https://github.com/duffield-forge/forge"

	flaggy.Bool(&configFlag, "c", "config", "Print the current default config")
	flaggy.Bool(&debuggingFlag, "d", "debug", "a boolean")
	flaggy.Bool(&releaseFlag, "r", "release", "build with the release profile")
	flaggy.Int(&jobsFlag, "j", "jobs", "number of units to build concurrently")
	flaggy.String(&ccFlag, "", "cc", "compiler command template to invoke per unit; empty runs the fingerprint-only demo executor")
	flaggy.String(&targetFlag, "t", "target", "target name to build; empty picks the lib, else the first bin")
	flaggy.String(&pkgNameFlag, "n", "name", "root package name")
	flaggy.String(&pkgVersFlag, "", "pkg-version", "root package version")
	flaggy.SetVersion(info)

	flaggy.Parse()

	if configFlag {
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		err := encoder.Encode(config.GetDefaultConfig())
		if err != nil {
			log.Fatal(err.Error())
		}
		fmt.Printf("%v\n", buf.String())
		os.Exit(0)
	}

	projectDir, err := os.Getwd()
	if err != nil {
		log.Fatal(err.Error())
	}

	appConfig, err := config.NewAppConfig("forge", version, commit, date, buildSource, debuggingFlag, projectDir)
	if err != nil {
		log.Fatal(err.Error())
	}

	a, err := app.NewApp(appConfig)
	if err != nil {
		log.Fatal(err.Error())
	}
	defer a.Close()

	root := demoRootPackage(projectDir, pkgNameFlag, pkgVersFlag)
	result, err := a.Build(context.Background(), root, jobsFlag, releaseFlag, ccFlag)
	if err != nil {
		if errMessage, known := a.KnownError(err); known {
			log.Println(errMessage)
			os.Exit(0)
		}

		stackTrace := forgeerr.Render(err)
		a.Log.Error(stackTrace)

		log.Fatalf("build failed\n\n%s", stackTrace)
	}

	fmt.Printf("built %d unit(s): %d fresh, %d rebuilt\n", len(result.Graph.Units), result.Fresh, result.Rebuilt)
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w.Message)
	}
}

// demoRootPackage stands in for the manifest file forge never parses
// itself: a single binary target built from the
// current directory, with no dependencies, enough to drive every stage
// of Build at least once.
func demoRootPackage(dir, name, vers string) app.RootPackage {
	if name == "" {
		name = filepath.Base(dir)
	}
	target := manifest.Target{
		Name:       name,
		Kind:       manifest.TargetBin,
		SourcePath: filepath.Join(dir, "main.go"),
		CrateTypes: []manifest.CrateType{manifest.CrateBin},
		Harness:    true,
	}
	m := manifest.Manifest{
		Targets: []manifest.Target{target},
		Profiles: map[string]manifest.ProfileTOML{
			"dev":     {},
			"release": {},
		},
	}
	return app.RootPackage{
		Name:       name,
		Version:    vers,
		Dir:        dir,
		Manifest:   m,
		TargetName: targetFlag,
	}
}

func updateBuildInfo() {
	if version == DEFAULT_VERSION {
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			revision, ok := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
				return setting.Key == "vcs.revision"
			})
			if ok {
				commit = revision.Value
				version = safeTruncate(revision.Value, 7)
			}

			buildTime, ok := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
				return setting.Key == "vcs.time"
			})
			if ok {
				date = buildTime.Value
			}
		}
	}
}

func safeTruncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
