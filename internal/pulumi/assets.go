package provider

import (
	"fmt"
	"path/filepath"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/mikecbrant/distro-backend/internal/utils"
)

// bootstrapFile is the entry point the provided.al2023 runtime executes.
const bootstrapFile = "bootstrap"

// codeArchive packs the files of an artifact dir selected by the include and
// exclude globs. The dir must contain a bootstrap executable.
func codeArchive(dir string, include, exclude []string) (pulumi.Archive, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	files, err := utils.CollectFiles(abs, include, exclude)
	if err != nil {
		return nil, fmt.Errorf("collect artifacts in %s: %w", dir, err)
	}
	assets := make(map[string]interface{}, len(files))
	for _, rel := range files {
		assets[rel] = pulumi.NewFileAsset(filepath.Join(abs, filepath.FromSlash(rel)))
	}
	if _, ok := assets[bootstrapFile]; !ok {
		return nil, fmt.Errorf("artifact dir %s has no %s after include/exclude filtering", dir, bootstrapFile)
	}
	return pulumi.NewAssetArchive(assets), nil
}
