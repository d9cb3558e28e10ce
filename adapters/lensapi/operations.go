package lensapi

type operation struct {
	name  string
	query string
}

const sessionFields = `
  authenticationId
  app
  browser
  device
  os
  origin
  signer
  createdAt
  updatedAt
  expiresAt`

const accountFields = `
  address
  owner
  username {
    value
  }
  createdAt`

var (
	opChallenge = operation{
		name: "Challenge",
		query: `mutation Challenge($request: ChallengeRequest!) {
  challenge(request: $request) {
    id
    text
  }
}`,
	}

	opAuthenticate = operation{
		name: "Authenticate",
		query: `mutation Authenticate($request: SignedAuthChallenge!) {
  authenticate(request: $request) {
    __typename
    ... on AuthenticationTokens {
      accessToken
      refreshToken
      idToken
    }
    ... on WrongSignerError {
      reason
    }
    ... on ExpiredChallengeError {
      reason
    }
    ... on ForbiddenError {
      reason
    }
  }
}`,
	}

	opRefresh = operation{
		name: "Refresh",
		query: `mutation Refresh($request: RefreshRequest!) {
  refresh(request: $request) {
    __typename
    ... on AuthenticationTokens {
      accessToken
      refreshToken
      idToken
    }
    ... on ForbiddenError {
      reason
    }
  }
}`,
	}

	opCurrentSession = operation{
		name: "CurrentSession",
		query: `query CurrentSession {
  currentSession {` + sessionFields + `
  }
}`,
	}

	opAuthenticatedSessions = operation{
		name: "AuthenticatedSessions",
		query: `query AuthenticatedSessions($request: AuthenticatedSessionsRequest!) {
  authenticatedSessions(request: $request) {
    items {` + sessionFields + `
    }
    pageInfo {
      prev
      next
    }
  }
}`,
	}

	opRevokeAuthentication = operation{
		name: "RevokeAuthentication",
		query: `mutation RevokeAuthentication($request: RevokeAuthenticationRequest!) {
  revokeAuthentication(request: $request)
}`,
	}

	opLastLoggedInAccount = operation{
		name: "LastLoggedInAccount",
		query: `query LastLoggedInAccount($request: LastLoggedInAccountRequest!) {
  lastLoggedInAccount(request: $request) {` + accountFields + `
  }
}`,
	}

	opAccountsAvailable = operation{
		name: "AccountsAvailable",
		query: `query AccountsAvailable($request: AccountsAvailableRequest!) {
  accountsAvailable(request: $request) {
    items {
      __typename
      ... on AccountManaged {
        account {` + accountFields + `
        }
      }
      ... on AccountOwned {
        account {` + accountFields + `
        }
      }
    }
    pageInfo {
      prev
      next
    }
  }
}`,
	}

	opCreateAccountWithUsername = operation{
		name: "CreateAccountWithUsername",
		query: `mutation CreateAccountWithUsername($request: CreateAccountWithUsernameRequest!) {
  createAccountWithUsername(request: $request) {
    __typename
    ... on CreateAccountResponse {
      hash
    }
    ... on UsernameTaken {
      reason
    }
    ... on NamespaceOperationValidationFailed {
      reason
    }
    ... on TransactionWillFail {
      reason
    }
  }
}`,
	}

	opSetAccountMetadata = operation{
		name: "SetAccountMetadata",
		query: `mutation SetAccountMetadata($request: SetAccountMetadataRequest!) {
  setAccountMetadata(request: $request) {
    __typename
    ... on SetAccountMetadataResponse {
      hash
    }
    ... on SponsoredTransactionRequest {
      reason
    }
    ... on SelfFundedTransactionRequest {
      reason
    }
    ... on TransactionWillFail {
      reason
    }
  }
}`,
	}

	opCreateApp = operation{
		name: "CreateApp",
		query: `mutation CreateApp($request: CreateAppRequest!) {
  createApp(request: $request) {
    __typename
    ... on CreateAppResponse {
      hash
    }
    ... on TransactionWillFail {
      reason
    }
  }
}`,
	}
)
