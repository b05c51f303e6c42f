package feature

// Dictionary identifies one of the built-in word lists.
type Dictionary uint8

const (
	DictMonth Dictionary = iota
	DictJournal
	DictPublisher
	DictPages
	DictVolume
	DictParticle
	DictStop
	DictAbbrev
	DictEditor
)

var dictNames = [...]string{"month", "journal", "publisher", "pages", "volume", "particle", "stop", "abbrev", "editor"}

func (d Dictionary) String() string {
	return dictNames[d]
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Entries are lowercase; lookups lowercase the token first.
var dictionaries = [...]map[string]bool{
	DictMonth: set("jan", "january", "feb", "february", "mar", "march", "apr", "april",
		"may", "jun", "june", "jul", "july", "aug", "august", "sep", "sept", "september",
		"oct", "october", "nov", "november", "dec", "december", "spring", "summer", "fall",
		"autumn", "winter"),
	DictJournal: set("journal", "proceedings", "proc", "transactions", "trans",
		"review", "reviews", "letters", "lett", "annals", "ann", "bulletin", "bull",
		"quarterly", "magazine", "nature", "science", "conference", "conf", "symposium",
		"workshop", "acta", "archives", "arch", "research", "studies", "communications",
		"comm", "international", "int", "american", "european", "physical", "phys",
		"chemical", "chem", "biology", "biol", "medicine", "med", "ieee", "acm", "plos",
		"arxiv", "biorxiv", "medrxiv", "preprint"),
	DictPublisher: set("press", "publisher", "publishers", "publishing", "publications",
		"books", "verlag", "wiley", "springer", "elsevier", "routledge", "sage", "penguin",
		"macmillan", "pearson", "mcgraw-hill", "addison-wesley", "o'reilly", "mit",
		"oxford", "cambridge", "harvard", "princeton", "blackwell", "academic", "inc",
		"ltd", "co"),
	DictPages:    set("pp", "p", "pages", "page", "pgs"),
	DictVolume:   set("vol", "volume", "vols", "no", "nr", "issue", "iss", "num", "number"),
	DictParticle: set("van", "von", "der", "den", "de", "del", "della", "di", "da", "du", "la", "le", "ter", "ten", "bin", "al", "el"),
	DictStop: set("a", "an", "the", "of", "and", "in", "on", "for", "to", "with", "from",
		"by", "at", "as", "is", "are", "via", "into", "towards", "toward", "using", "its",
		"or", "how", "what", "why", "when", "we", "our"),
	DictAbbrev: set("vol", "no", "nr", "pp", "p", "ed", "eds", "et", "al", "vs", "etc",
		"jr", "sr", "dr", "st", "inc", "co", "ltd", "ch", "pt", "rev", "trans", "univ",
		"dept", "proc", "conf", "int", "j", "fig", "eq", "ser", "suppl", "mr", "mrs", "ms"),
	DictEditor: set("ed", "eds", "editor", "editors", "edited", "hrsg", "hg"),
}

// InDictionary reports whether the lowercase word is in dictionary d.
func InDictionary(d Dictionary, lower string) bool {
	return dictionaries[d][lower]
}
