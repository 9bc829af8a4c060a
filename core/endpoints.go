package core

const (
	EndpointUserInfo              = "getUserInfo"
	EndpointIssuingCenters        = "getIssuingCentersInfo"
	EndpointOrganizations         = "getOrganizationsInfo"
	EndpointCreateActivity        = "createActivity"
	EndpointDeleteActivity        = "deleteActivity"
	EndpointCreateAssessment      = "createAssessment"
	EndpointDeleteAssessment      = "deleteAssessment"
	EndpointCreateLearningOutcome = "createLearningOutcome"
	EndpointDeleteLearningOutcome = "deleteLearningOutcome"
	EndpointCreateAchievement     = "createAchievement"
	EndpointDeleteAchievement     = "deleteAchievement"
	EndpointCreateCredential      = "createCredential"
	EndpointDeleteCredential      = "deleteCredential"
	EndpointEmissionsBlock        = "getEmissionsBlockData"
	EndpointEmissionsSeal         = "emissionsSeal"
	EndpointEmissionsSend         = "emissionsSend"
	EndpointEmissionsSendEUWallet = "emissionsSendEUWallet"
)

// DefaultEndpoints returns the catalog relative to api.base_url. Deployments
// override individual entries from the config file.
func DefaultEndpoints() map[string]string {
	return map[string]string{
		EndpointUserInfo:              "/api/v1/users/me",
		EndpointIssuingCenters:        "/api/v1/issuing-centers",
		EndpointOrganizations:         "/api/v1/organizations",
		EndpointCreateActivity:        "/api/v1/activities",
		EndpointDeleteActivity:        "/api/v1/activities",
		EndpointCreateAssessment:      "/api/v1/assessments",
		EndpointDeleteAssessment:      "/api/v1/assessments",
		EndpointCreateLearningOutcome: "/api/v1/learning-outcomes",
		EndpointDeleteLearningOutcome: "/api/v1/learning-outcomes",
		EndpointCreateAchievement:     "/api/v1/achievements",
		EndpointDeleteAchievement:     "/api/v1/achievements",
		EndpointCreateCredential:      "/api/v1/credentials",
		EndpointDeleteCredential:      "/api/v1/credentials",
		EndpointEmissionsBlock:        "/api/v1/emissions/blocks",
		EndpointEmissionsSeal:         "/api/v1/emissions/seal",
		EndpointEmissionsSend:         "/api/v1/emissions/send",
		EndpointEmissionsSendEUWallet: "/api/v1/emissions/send/euwallet",
	}
}
