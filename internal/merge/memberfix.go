package merge

import "chatmerge/internal/domain"

// Resolver возвращает новое отображаемое имя для имени участника, как оно
// было записано в исходном экспорте, если слияние пользователей дало этому
// человеку другое имя в целевом датасете.
type Resolver func(oldName string) (newName string, ok bool)

// RewriteMembers переписывает имена участников в служебных сообщениях на их
// актуальные после слияния отображаемые имена. GroupCreate,
// GroupInviteMembers, GroupRemoveMembers и GroupCall несут имена участников
// строками, как они были в исходном датасете; после слияния пользователей
// два датасета могут знать разные написания одного и того же человека
// (например, UserReplace сменил фамилию), поэтому каждая строка, разрешимая
// в известного пользователя, переписывается на его финальное имя, а
// неразрешимые остаются как есть.
func RewriteMembers(msg domain.Message, resolve Resolver) domain.Message {
	if !msg.IsService() {
		return msg
	}
	svc := msg.Typed.Service
	switch svc.Kind {
	case domain.SvcGroupCreate, domain.SvcGroupInviteMembers, domain.SvcGroupRemoveMembers, domain.SvcGroupCall:
		svc.MemberNames = rewriteNames(svc.MemberNames, resolve)
	}
	msg.Typed.Service = svc
	return msg
}

func rewriteNames(names []string, resolve Resolver) []string {
	if len(names) == 0 {
		return names
	}
	out := make([]string, len(names))
	for i, name := range names {
		if newName, ok := resolve(name); ok {
			out[i] = newName
		} else {
			out[i] = name
		}
	}
	return out
}
