package acquire

// Selectors for the PJe TJMG portal. The ids with JSF colons are matched
// via attribute selectors so nothing needs CSS escaping.
const (
	selectorSSOFrame    = "#ssoFrame"
	selectorUsername    = "#username"
	selectorPassword    = "#password"
	selectorLoginSubmit = "input[type='submit']"

	selectorFieldSequential = "input[id='fPP:numeroProcesso:numeroSequencial']"
	selectorFieldDigit      = "input[id='fPP:numeroProcesso:numeroDigitoVerificador']"
	selectorFieldYear       = "input[id='fPP:numeroProcesso:Ano']"
	selectorFieldCourt      = "input[id='fPP:numeroProcesso:NumeroOrgaoJustica']"
	selectorSearchButton    = "input[value='Pesquisar']"

	selectorDownloadMenu = "a.btn-menu-abas.dropdown-toggle[title*='Download']"
)

// loginMarkers are content fragments whose presence after the SSO round
// trip confirms an authenticated session. All three absent means the
// login silently failed.
var loginMarkers = []string{"processo", "consulta", "quadroaviso"}

// downloadTriggerScript clicks the download action. It tries the stable
// navbar id first and falls back to matching the control by its label,
// because the portal's generated ids are not stable across sessions.
const downloadTriggerScript = `() => {
	const byId = document.getElementById('navbar:j_id220');
	if (byId) {
		byId.click();
		return true;
	}
	const byLabel = document.querySelectorAll('input[value="Download"]');
	if (byLabel.length > 0) {
		byLabel[0].click();
		return true;
	}
	return false;
}`
