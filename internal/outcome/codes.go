package outcome

import "fmt"

// Exit codes returned by the bouncer tool.
const (
	CodeOK                      = 0
	CodeLaunchingComputeClient  = 1
	CodeAuthFailed              = 2
	CodeUnknownCmd              = 3
	CodeUnknownErr              = 4
	CodeLoadSceneFail           = 5
	CodeStashGenFail            = 6
	CodeLoadSceneMissingTexture = 7
	CodeInvalidArg              = 8
	CodeFedGenFail              = 9
	CodeLoadSceneMissingNodes   = 10
	CodeGetFileFailed           = 11
	CodeCrashed                 = 12
	CodeParamFileReadFailed     = 13
	CodeBundleGenFailed         = 14
	CodeLoadSceneInvalidMeshes  = 15
	CodeArgFileFail             = 16
	CodeNoMeshes                = 17
	CodeFileTypeNotSupported    = 18
	CodeModelFileRead           = 19
	CodeFileAssimpGen           = 20
	CodeFileIFCGeoGen           = 21
	CodeUnsupportedBIMVersion   = 22
	CodeUnsupportedFBXVersion   = 23
	CodeUnsupportedVersion      = 24
	CodeMaxNodesExceeded        = 25
	CodeODAUnavailable          = 26
	CodeValid3DViewNotFound     = 27
)

var codeNames = map[int]string{
	CodeOK:                      "OK",
	CodeLaunchingComputeClient:  "LAUNCHING_COMPUTE_CLIENT",
	CodeAuthFailed:              "AUTH_FAILED",
	CodeUnknownCmd:              "UNKNOWN_CMD",
	CodeUnknownErr:              "UNKNOWN_ERR",
	CodeLoadSceneFail:           "LOAD_SCENE_FAIL",
	CodeStashGenFail:            "STASH_GEN_FAIL",
	CodeLoadSceneMissingTexture: "LOAD_SCENE_MISSING_TEXTURE",
	CodeInvalidArg:              "INVALID_ARG",
	CodeFedGenFail:              "FED_GEN_FAIL",
	CodeLoadSceneMissingNodes:   "LOAD_SCENE_MISSING_NODES",
	CodeGetFileFailed:           "GET_FILE_FAILED",
	CodeCrashed:                 "CRASHED",
	CodeParamFileReadFailed:     "PARAM_FILE_READ_FAILED",
	CodeBundleGenFailed:         "BUNDLE_GEN_FAILED",
	CodeLoadSceneInvalidMeshes:  "LOAD_SCENE_INVALID_MESHES",
	CodeArgFileFail:             "ARG_FILE_FAIL",
	CodeNoMeshes:                "NO_MESHES",
	CodeFileTypeNotSupported:    "FILE_TYPE_NOT_SUPPORTED",
	CodeModelFileRead:           "MODEL_FILE_READ",
	CodeFileAssimpGen:           "FILE_ASSIMP_GEN",
	CodeFileIFCGeoGen:           "FILE_IFC_GEO_GEN",
	CodeUnsupportedBIMVersion:   "UNSUPPORTED_BIM_VERSION",
	CodeUnsupportedFBXVersion:   "UNSUPPORTED_FBX_VERSION",
	CodeUnsupportedVersion:      "UNSUPPORTED_VERSION",
	CodeMaxNodesExceeded:        "MAX_NODES_EXCEEDED",
	CodeODAUnavailable:          "ODA_UNAVAILABLE",
	CodeValid3DViewNotFound:     "VALID_3D_VIEW_NOT_FOUND",
}

// CodeName returns the bouncer name for code, or "UNKNOWN".
func CodeName(code int) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return "UNKNOWN"
}

// Describe renders o for humans, e.g. "7 (LOAD_SCENE_MISSING_TEXTURE)".
func Describe(o Outcome) string {
	code, ok := o.ExitCode()
	if !ok {
		return o.String()
	}
	return fmt.Sprintf("%d (%s)", code, CodeName(code))
}
