package metadata

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
)

const definitionAddress string = "https://api.nuget.org/v3/index.json"
const nugetName string = "microsoft.windows.sdk.win32metadata"

var (
	ErrNoPackageBaseAddress = errors.New("package base address not advertised by the feed")
	ErrNoVersions           = errors.New("no package versions published")
	ErrNoMetadataFile       = errors.New("package does not contain a .winmd file")
)

// DownloadMetadata fetches the newest metadata package from NuGet and writes
// its .winmd file to metadataFileName.
func DownloadMetadata(metadataFileName string) error {
	baseAddress, err := getBaseAddress()
	if err != nil {
		return err
	}
	versionsResponse, err := queryGet(fmt.Sprintf("%s%s/index.json", baseAddress, nugetName))
	if err != nil {
		return err
	}
	versions, err := parse[map[string][]string](versionsResponse)
	if err != nil {
		return fmt.Errorf("could not parse version list: %w", err)
	}
	latest, err := LatestVersion(versions["versions"])
	if err != nil {
		return err
	}

	nugetBytes, err := queryGet(fmt.Sprintf("%s%s/%s/%s.%s.nupkg", baseAddress, nugetName, latest, nugetName, latest))
	if err != nil {
		return err
	}
	metadataBytes, err := extractMetadata(nugetBytes)
	if err != nil {
		return fmt.Errorf("%s %s: %w", nugetName, latest, err)
	}
	return os.WriteFile(metadataFileName, metadataBytes, 0644)
}

// LatestVersion returns the highest of the given version strings, as written.
func LatestVersion(versionStrings []string) (string, error) {
	if len(versionStrings) == 0 {
		return "", ErrNoVersions
	}
	orderedVersions := make([]*version.Version, len(versionStrings))
	for i, versionString := range versionStrings {
		v, err := version.NewVersion(versionString)
		if err != nil {
			return "", fmt.Errorf("error parsing version %s: %w", versionString, err)
		}
		orderedVersions[i] = v
	}

	sort.Sort(version.Collection(orderedVersions))
	return orderedVersions[len(orderedVersions)-1].Original(), nil
}

func extractMetadata(nugetBytes []byte) ([]byte, error) {
	bytesReader := bytes.NewReader(nugetBytes)
	nuget, err := zip.NewReader(bytesReader, int64(bytesReader.Len()))
	if err != nil {
		return nil, err
	}
	for _, file := range nuget.File {
		if filepath.Ext(file.Name) == ".winmd" {
			reader, err := file.Open()
			if err != nil {
				return nil, err
			}
			defer reader.Close()
			return io.ReadAll(reader)
		}
	}
	return nil, ErrNoMetadataFile
}

func getBaseAddress() (string, error) {
	response, err := queryGet(definitionAddress)
	if err != nil {
		return "", err
	}
	index, err := parse[nugetIndex](response)
	if err != nil {
		return "", fmt.Errorf("could not parse service index: %w", err)
	}
	return index.packageBaseAddress()
}

func (index nugetIndex) packageBaseAddress() (string, error) {
	for _, resource := range index.Resources {
		if strings.Contains(resource.Type, "PackageBaseAddress") {
			return resource.Id, nil
		}
	}
	return "", ErrNoPackageBaseAddress
}

func parse[T interface{}](source []byte) (T, error) {
	var parsedBody T
	err := json.Unmarshal(source, &parsedBody)
	return parsedBody, err
}

func queryGet(url string) ([]byte, error) {
	client := http.Client{}
	request, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}

	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, response.Status)
	}

	return io.ReadAll(response.Body)
}

type nugetIndex struct {
	Resources []nugetResource `json:"resources"`
}

type nugetResource struct {
	Id   string `json:"@id"`
	Type string `json:"@type"`
}
