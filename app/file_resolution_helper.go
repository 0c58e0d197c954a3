package app

import "github.com/ludo-technologies/pyjit/domain"

// ResolveFilePaths turns the command-line paths into the list of Python
// files to lower. A list made only of existing .py files is returned as is,
// so callers that already collected files (the MCP server, check over an
// explicit file list) skip a second directory walk.
func ResolveFilePaths(
	fileReader domain.FileReader,
	paths []string,
	recursive bool,
	includePatterns []string,
	excludePatterns []string,
) ([]string, error) {
	if allPythonFiles(fileReader, paths) {
		return paths, nil
	}
	return fileReader.CollectPythonFiles(paths, recursive, includePatterns, excludePatterns)
}

func allPythonFiles(fileReader domain.FileReader, paths []string) bool {
	if len(paths) == 0 {
		return false
	}
	for _, path := range paths {
		if !fileReader.IsValidPythonFile(path) {
			return false
		}
		exists, err := fileReader.FileExists(path)
		if err != nil || !exists {
			return false
		}
	}
	return true
}
