package buildinfo

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

const (
	// Name is the product token of the User-Agent header.
	Name = "alert-autoconf"

	teamCityPropertiesEnv = "TEAMCITY_BUILD_PROPERTIES_FILE"
	teamCityServerEnv     = "TEAMCITY_SERVER_URL"
	teamCityBuildIDKey    = "teamcity.build.id"
)

// Version is overridden at link time with -ldflags "-X alert-autoconf/internal/buildinfo.Version=...".
var Version = "dev"

type properties struct {
	Entries []struct {
		Key   string `xml:"key,attr"`
		Value string `xml:",chardata"`
	} `xml:"entry"`
}

// TeamCityBuildID reads build id from the XML twin of the TeamCity properties file.
// Params: environment lookup.
// Returns: build id, false outside TeamCity or when the key is missing, or read error.
func TeamCityBuildID(getenv func(string) string) (string, bool, error) {
	propertiesPath := strings.TrimSpace(getenv(teamCityPropertiesEnv))
	if propertiesPath == "" {
		return "", false, nil
	}
	body, err := os.ReadFile(propertiesPath + ".xml")
	if err != nil {
		return "", false, fmt.Errorf("read teamcity properties: %w", err)
	}
	var parsed properties
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("decode teamcity properties: %w", err)
	}
	for _, entry := range parsed.Entries {
		if entry.Key == teamCityBuildIDKey {
			return strings.TrimSpace(entry.Value), true, nil
		}
	}
	return "", false, nil
}

// UserAgent builds "alert-autoconf/<version>" with optional TeamCity build reference.
// Params: environment lookup.
// Returns: header value; unreadable TeamCity metadata is ignored.
func UserAgent(getenv func(string) string) string {
	agent := Name + "/" + Version
	buildID, ok, err := TeamCityBuildID(getenv)
	if err != nil || !ok {
		return agent
	}
	server := strings.TrimRight(strings.TrimSpace(getenv(teamCityServerEnv)), "/")
	if server == "" {
		return agent + " (TeamCity; buildId=" + buildID + ")"
	}
	return agent + " (TeamCity; " + server + "/viewLog.html?buildId=" + buildID + ")"
}
